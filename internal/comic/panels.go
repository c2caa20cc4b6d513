package comic

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

const numPanelsKey = "num_panels"

// MaxPanels bounds num_panels on decode. Real issues have a handful of panels;
// the count arrives from queue messages and sizes an allocation.
const MaxPanels = 1000

// Panels is an ordered panel mapping, index 1..N. It is used both for panel image
// locations and for the per-panel OCR text. An unresolved panel is an empty string,
// never a gap.
//
// The JSON form is {"num_panels": N, "panel1": "...", ..., "panelN": "..."}.
type Panels []string

// Len returns the panel count N.
func (p Panels) Len() int {
	return len(p)
}

// At returns the value for the 1-based panel index, or "" when out of range.
func (p Panels) At(index int) string {
	if index < 1 || index > len(p) {
		return ""
	}
	return p[index-1]
}

// Key returns the wire key for a 1-based panel index.
func Key(index int) string {
	return "panel" + strconv.Itoa(index)
}

// Join concatenates the non-empty panel values with sep.
func (p Panels) Join(sep string) string {
	parts := make([]string, 0, len(p))
	for _, v := range p {
		if v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, sep)
}

// MarshalJSON encodes the panels as a num_panels object.
func (p Panels) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p)+1)
	out[numPanelsKey] = len(p)
	for i, v := range p {
		out[Key(i+1)] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes a num_panels object. Entries missing for an index within
// num_panels become "", keys beyond num_panels are ignored.
func (p *Panels) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode panels: %w", err)
	}
	if raw == nil {
		*p = Panels{}
		return nil
	}

	n := 0
	if v, ok := raw[numPanelsKey]; ok {
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("decode %s: %w", numPanelsKey, err)
		}
	}
	if n < 0 {
		return fmt.Errorf("decode %s: negative count %d", numPanelsKey, n)
	}
	if n > MaxPanels {
		return fmt.Errorf("decode %s: count %d exceeds %d", numPanelsKey, n, MaxPanels)
	}

	out := make(Panels, n)
	for i := 1; i <= n; i++ {
		v, ok := raw[Key(i)]
		if !ok {
			continue
		}
		var s *string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("decode %s: %w", Key(i), err)
		}
		if s != nil {
			out[i-1] = *s
		}
	}
	*p = out
	return nil
}
