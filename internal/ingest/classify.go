package ingest

import "github.com/linnemanlabs/wxalerts/internal/alert"

// Classification is the outcome of comparing an incoming alert to persisted state.
type Classification string

const (
	// ClassNewHighPriority is an unseen Severe or Extreme alert.
	ClassNewHighPriority Classification = "new_high_priority"

	// ClassNewNormal is an unseen Minor or Moderate alert.
	ClassNewNormal Classification = "new_normal"

	// ClassUnchanged is a seen alert whose headline and description match the stored record.
	ClassUnchanged Classification = "unchanged"

	// ClassUpdated is a seen alert whose headline or description changed.
	ClassUpdated Classification = "updated"

	// ClassAlreadyAtCapacity is a seen alert with no stored record (state drift).
	ClassAlreadyAtCapacity Classification = "already_at_capacity"
)

// Classify decides the outcome for al from its id and the stored content only.
func Classify(al *alert.Alert, st *State) Classification {
	if !st.Seen(al.ID) {
		if al.IsHighPriority() {
			return ClassNewHighPriority
		}
		return ClassNewNormal
	}

	stored, ok := st.Find(al.ID)
	if !ok {
		return ClassAlreadyAtCapacity
	}
	if stored.SameContent(al) {
		return ClassUnchanged
	}
	return ClassUpdated
}
