// Package intent maps known free-text phrases to canned replies. The table
// is built once at process start and never mutated afterwards.
package intent

import "strings"

// Response is a canned reply plus up to three suggested next intents, shown
// as quick-reply buttons.
type Response struct {
	Text    string
	Suggest []string
}

// Table is a read-only phrase lookup.
type Table struct {
	entries map[string]Response
	order   []string // substring match runs in insertion order
}

// NewTable builds the default phrase table.
func NewTable() *Table {
	t := &Table{entries: make(map[string]Response)}

	t.add("shipping policy", Response{
		Text:    "We ship across India within 5-7 working days. Orders above Rs. 999 ship free.",
		Suggest: []string{"Return policy", "Track order", "Main menu"},
	})
	t.add("return policy", Response{
		Text:    "Returns are accepted within 7 days of delivery for unused items in original packaging.",
		Suggest: []string{"Shipping policy", "Contact us", "Main menu"},
	})
	t.add("track order", Response{
		Text:    "Reply with your 14-digit tracking number (AWB) and I will fetch the tracking link.",
		Suggest: []string{"Contact us", "Main menu"},
	})
	t.add("payment options", Response{
		Text:    "We accept UPI, cards and Cash on Delivery. COD carries a Rs. 150 handling fee.",
		Suggest: []string{"Shipping policy", "Main menu"},
	})
	t.add("contact us", Response{
		Text:    "You can reach us at support@ouostore.in. We reply within one working day.",
		Suggest: []string{"Main menu"},
	})
	t.add("cod", Response{
		Text:    "Cash on Delivery is available with a Rs. 150 handling fee, added at checkout.",
		Suggest: []string{"Payment options", "Main menu"},
	})

	return t
}

func (t *Table) add(phrase string, r Response) {
	t.entries[phrase] = r
	t.order = append(t.order, phrase)
}

// Lookup matches the text against the table, exact phrase first and then
// substring, case-insensitive. The second return is false when nothing
// matched.
func (t *Table) Lookup(text string) (Response, bool) {
	key := strings.ToLower(strings.TrimSpace(text))
	if r, ok := t.entries[key]; ok {
		return r, true
	}
	for _, phrase := range t.order {
		if strings.Contains(key, phrase) {
			return t.entries[phrase], true
		}
	}
	return Response{}, false
}
