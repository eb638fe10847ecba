package native

// ContentTypeText is the content type of password-style secrets.
const ContentTypeText = "text/plain"

// Value is a secret payload with its content type.
type Value struct {
	secret      []byte
	contentType string
}

// NewValue copies secret into a new value.
func NewValue(secret []byte, contentType string) *Value {
	return &Value{secret: append([]byte(nil), secret...), contentType: contentType}
}

// Get returns a copy of the secret bytes.
func (v *Value) Get() []byte {
	return append([]byte(nil), v.secret...)
}

// ContentType returns the payload's content type.
func (v *Value) ContentType() string { return v.contentType }

// Text returns the secret as text if its content type is text/plain.
func (v *Value) Text() (string, bool) {
	if v.contentType != ContentTypeText {
		return "", false
	}
	return string(v.secret), true
}
