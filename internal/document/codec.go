package document

import (
	"bytes"
	"encoding/json"
)

// object is a decoded JSON object. Known keys are taken out while decoding;
// whatever is left is carried as Extra and written back untouched.
type object map[string]json.RawMessage

func decodeObject(raw json.RawMessage, field string) (object, error) {
	var obj object
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return nil, malformed(field, "must be an object")
	}
	return obj, nil
}

func (o object) take(key string, dst any, field string) (bool, error) {
	raw, ok := o[key]
	if !ok {
		return false, nil
	}
	delete(o, key)
	if err := json.Unmarshal(raw, dst); err != nil {
		return true, malformed(field+"."+key, "unexpected value %s", truncate(raw))
	}
	return true, nil
}

func (o object) clone() object {
	out := make(object, len(o))
	for k, v := range o {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// encoder assembles an object on top of carried extras.
type encoder struct {
	obj object
	err error
}

func newEncoder(extra object) *encoder {
	return &encoder{obj: extra.clone()}
}

func (e *encoder) set(key string, v any) {
	if e.err != nil {
		return
	}
	raw, err := marshal(v)
	if err != nil {
		e.err = err
		return
	}
	e.obj[key] = raw
}

func (e *encoder) setString(key, v string) {
	if v != "" {
		e.set(key, v)
	}
}

// setObject nests a sub-encoder under key.
func (e *encoder) setObject(key string, sub *encoder) {
	if e.err != nil {
		return
	}
	raw, err := sub.done()
	if err != nil {
		e.err = err
		return
	}
	e.obj[key] = raw
}

func (e *encoder) done() (json.RawMessage, error) {
	if e.err != nil {
		return nil, e.err
	}
	return marshal(e.obj)
}

// marshal encodes without HTML escaping so passwords such as "a&b" stay readable.
func marshal(v any) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func truncate(raw json.RawMessage) string {
	const limit = 40
	if len(raw) > limit {
		return string(raw[:limit]) + "..."
	}
	return string(raw)
}
