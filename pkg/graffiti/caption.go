package graffiti

import "strconv"

// Caption is the parsed text of a request: an optional leading character
// size followed by the text to draw.
type Caption struct {
	Text    string
	Size    float64
	HasSize bool
}

// ParseCaption splits "  48 Hello" into size 48 and text "Hello". Spaces
// and digits are consumed until the first other character; everything from
// there on is the caption text, verbatim.
func ParseCaption(raw string) Caption {
	var caption Caption
	digits := make([]byte, 0, 4)

	for i := 0; i < len(raw); i++ {
		ch := raw[i]
		if ch == ' ' {
			continue
		}
		if ch >= '0' && ch <= '9' {
			digits = append(digits, ch)
			continue
		}
		caption.Text = raw[i:]
		if len(digits) > 0 {
			// A digit string always parses; values too large for float64
			// come back as +Inf and are rejected by the composer's range check.
			caption.Size, _ = strconv.ParseFloat(string(digits), 64)
			caption.HasSize = true
		}
		break
	}
	return caption
}
