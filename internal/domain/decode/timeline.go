package decode

import (
	"fmt"

	"github.com/okian/scout/internal/domain/coerce"
	"github.com/okian/scout/internal/domain/model"
	"github.com/okian/scout/internal/domain/schema"
)

// DecodeTimeline splits s into fixed-width entries. Entries at and after the
// first phase-transition action are marked InTeleop.
func (d *Decoder) DecodeTimeline(s string) ([]model.TimelineEntry, error) {
	out := []model.TimelineEntry{}
	if s == "" {
		return out, nil
	}

	width := d.schema.TimelineWidth()
	if width == 0 || len(s)%width != 0 {
		return nil, fmt.Errorf("%w: %d characters is not a multiple of %d", ErrTimelineLength, len(s), width)
	}

	teleop := false
	for start := 0; start < len(s); start += width {
		chunk := s[start : start+width]

		var entry model.TimelineEntry
		pos := 0
		for _, col := range d.schema.Timeline {
			raw := chunk[pos : pos+col.Length]
			pos += col.Length

			v, err := coerce.Coerce(raw, col.Type, col.Name, d.schema)
			if err != nil {
				return nil, fmt.Errorf("timeline entry %d %s: %w", start/width, col.Name, err)
			}
			switch col.Name {
			case "time":
				entry.Time, _ = v.(int)
			case schema.EnumActionType:
				entry.ActionType, _ = v.(string)
			}
		}

		if entry.ActionType == d.schema.PhaseTransition {
			teleop = true
		}
		entry.InTeleop = teleop
		out = append(out, entry)
	}
	return out, nil
}
