package ingest

import "github.com/linnemanlabs/wxalerts/internal/alert"

const (
	noUpdatesTitle = "No updates found"
	noUpdatesBody  = "Alert check complete. No updates found."
	updatedBody    = "Click to view the updated alert."
)

// Dispatch maps a classified alert to its effects and state delta.
//
// High-priority alerts are marked seen but not stored: they are delivered by
// forcing the window to the front instead of through the notification history.
func Dispatch(al *alert.Alert, c Classification) (Batch, Delta) {
	switch c {
	case ClassNewHighPriority:
		return Batch{
			UrgentAlert(al),
			FocusWindow(),
			PlaySound(SoundEAS),
		}, Delta{AddSeenID: al.ID}

	case ClassNewNormal:
		detail := ShowDetail(al.ID)
		cp := *al
		return Batch{
			PlaySound(SoundStandard),
			Notify(al.Headline, al.Description, &detail),
		}, Delta{AddSeenID: al.ID, Upsert: &cp}

	case ClassUpdated:
		detail := ShowDetail(al.ID)
		cp := *al
		return Batch{
			PlaySound(SoundStandard),
			Notify("Alert updated: "+al.Headline, updatedBody, &detail),
		}, Delta{Upsert: &cp}

	case ClassUnchanged:
		n := Notify(noUpdatesTitle, noUpdatesBody, nil)
		n.Silent = true
		return Batch{n}, Delta{}

	default:
		return nil, Delta{}
	}
}
