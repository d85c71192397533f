package domain

import "strings"

// SameMedication compares medication names case-insensitively.
func SameMedication(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// NameMatches is the best-effort link between a prescription and stock that has
// no explicit prescription id: equal names, or either name a prefix of the other
// ("Metformin" matches "Metformin 500mg").
func NameMatches(itemName, prescribedName string) bool {
	item := strings.ToLower(strings.TrimSpace(itemName))
	rx := strings.ToLower(strings.TrimSpace(prescribedName))
	if item == "" || rx == "" {
		return false
	}
	return strings.HasPrefix(item, rx) || strings.HasPrefix(rx, item)
}
