// SPDX-License-Identifier: GPL-3.0-or-later

package framewire

import "slices"

// Field is one key/value pair of a text protocol header block.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// OverridePolicy decides what happens when a user field has the same key
// as a protocol-mandated one.
//
// The choice belongs to each protocol module: some fields only frame the
// message and are harmless to override, others (content-length,
// version negotiation) break the exchange when shadowed.
type OverridePolicy int

const (
	// ProtectMandatory drops user fields whose key matches a mandatory
	// field and reports them. This is the zero value.
	ProtectMandatory OverridePolicy = iota

	// AllowOverride lets a user field replace the value of the matching
	// mandatory field in place.
	AllowOverride
)

// MergeFields merges protocol-mandated fields with user-supplied ones.
//
// The result keeps the mandatory fields in order, followed by the user
// fields in order. Under [AllowOverride] a user field matching a
// mandatory key replaces that value at the mandatory position instead of
// being appended. Under [ProtectMandatory] it is dropped and its key is
// listed in dropped. Keys compare case-sensitively.
func MergeFields(mandatory, user []Field, policy OverridePolicy) (merged []Field, dropped []string) {
	merged = slices.Clone(mandatory)
	for _, field := range user {
		idx := slices.IndexFunc(mandatory, func(m Field) bool { return m.Key == field.Key })
		switch {
		case idx < 0:
			merged = append(merged, field)
		case policy == AllowOverride:
			merged[idx].Value = field.Value
		default:
			dropped = append(dropped, field.Key)
		}
	}
	return merged, dropped
}
