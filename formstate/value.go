package formstate

import (
	"bytes"
	"encoding/json"
	"strconv"
)

// InputValue is the captured value of an input element: a boolean for toggle
// controls (checkbox, radio), a string for everything else. On the wire it is
// a bare JSON boolean or string.
type InputValue struct {
	toggle  bool
	checked bool
	text    string
}

// Bool returns a toggle value.
func Bool(checked bool) InputValue {
	return InputValue{toggle: true, checked: checked}
}

// Text returns a free-text value.
func Text(s string) InputValue {
	return InputValue{text: s}
}

// IsToggle reports whether the value was captured from a toggle control.
func (v InputValue) IsToggle() bool { return v.toggle }

// Checked returns the value as a checked state. Text values follow the page
// scripting convention: any non-empty string is truthy.
func (v InputValue) Checked() bool {
	if v.toggle {
		return v.checked
	}
	return v.text != ""
}

// String returns the value as element text. Toggle values render as
// "true"/"false".
func (v InputValue) String() string {
	if v.toggle {
		return strconv.FormatBool(v.checked)
	}
	return v.text
}

// MarshalJSON implements json.Marshaler.
func (v InputValue) MarshalJSON() ([]byte, error) {
	if v.toggle {
		return json.Marshal(v.checked)
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON implements json.Unmarshaler. Booleans become toggle values,
// strings become text values; numbers keep their literal text and null is
// an empty text value.
func (v *InputValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*v = Text("")
		return nil
	case bytes.Equal(data, []byte("true")):
		*v = Bool(true)
		return nil
	case bytes.Equal(data, []byte("false")):
		*v = Bool(false)
		return nil
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = Text(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*v = Text(n.String())
	return nil
}
