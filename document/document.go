// Package document defines the mutable record that flows through a Pipeline:
// a Document carries an id, an optional run id, an arbitrary payload of
// scalar/sequence fields, a list of child Documents and an append-only error
// log. Reserved fields (id, run_id, .children) can only be touched through
// dedicated accessors; everything else goes through the generic setters
// below.
package document

import (
	"encoding/json"
	"fmt"
	"time"
)

const (
	IDField       = "id"
	RunIDField    = "run_id"
	ChildrenField = ".children"
	ErrorsField   = "errors"
)

// RenameMode controls how renameField merges with an existing target field.
type RenameMode int

const (
	Overwrite RenameMode = iota
	Append
	Skip
)

var reservedFields = map[string]bool{
	IDField:       true,
	RunIDField:    true,
	ChildrenField: true,
}

// Document is a mutable record passed through a Pipeline. The zero value is
// not usable; construct one with New, NewWithRunID or FromJSON.
type Document struct {
	id       string
	runID    string
	hasRun   bool
	fields   map[string]any
	order    []string
	children []*Document
	errors   []string
	dropped  bool
}

// New constructs a Document with the given id. It panics if id is empty.
func New(id string) *Document {
	if id == "" {
		panic("document: id must not be empty")
	}
	return &Document{id: id, fields: make(map[string]any)}
}

// NewWithRunID constructs a Document with both an id and a run id already
// set.
func NewWithRunID(id, runID string) *Document {
	d := New(id)
	d.runID = runID
	d.hasRun = true
	return d
}

// FromJSON parses a Document from its wire representation, rejecting a
// missing, empty or non-string id field.
func FromJSON(data []byte) (*Document, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("document: invalid json: %w", err)
	}
	return fromMap(raw)
}

func fromMap(raw map[string]any) (*Document, error) {
	idVal, ok := raw[IDField]
	if !ok || idVal == nil {
		return nil, &ValidationError{Op: "new", Reason: "id is missing"}
	}
	idStr, ok := idVal.(string)
	if !ok || idStr == "" {
		return nil, &ValidationError{Op: "new", Reason: "id is present but null, empty or not a string"}
	}

	d := New(idStr)
	if runVal, ok := raw[RunIDField]; ok {
		if s, ok := runVal.(string); ok {
			d.runID = s
			d.hasRun = true
		}
	}
	if errVal, ok := raw[ErrorsField]; ok {
		if list, ok := errVal.([]any); ok {
			for _, e := range list {
				if s, ok := e.(string); ok {
					d.errors = append(d.errors, s)
				}
			}
		}
	}
	if childVal, ok := raw[ChildrenField]; ok {
		if list, ok := childVal.([]any); ok {
			for _, c := range list {
				cm, ok := c.(map[string]any)
				if !ok {
					continue
				}
				child, err := fromMap(cm)
				if err != nil {
					continue
				}
				d.children = append(d.children, child)
			}
		}
	}

	for k, v := range raw {
		if reservedFields[k] || k == ErrorsField {
			continue
		}
		d.fields[k] = v
		d.order = append(d.order, k)
	}
	return d, nil
}

// ID returns the document's identity. It is always non-empty.
func (d *Document) ID() string { return d.id }

// RunID returns the currently associated run id, or "" if none is set.
func (d *Document) RunID() string { return d.runID }

// InitializeRunID sets the run id exactly once. Calling it a second time
// returns an invalid-state error.
func (d *Document) InitializeRunID(runID string) error {
	if d.hasRun {
		return &ValidationError{Op: "initializeRunID", Reason: "run_id already set"}
	}
	d.runID = runID
	d.hasRun = true
	return nil
}

// ClearRunID removes the run id association, if any.
func (d *Document) ClearRunID() {
	d.runID = ""
	d.hasRun = false
}

// IsDropped reports whether a Stage called SetDropped on this document.
func (d *Document) IsDropped() bool { return d.dropped }

// SetDropped marks the document as dropped: the Worker will still account
// for it (FINISH is still emitted) but it is not forwarded to the Indexer.
func (d *Document) SetDropped() { d.dropped = true }

// Has reports whether the named field is present (possibly with a null
// value).
func (d *Document) Has(name string) bool {
	_, ok := d.fields[name]
	return ok
}

// HasNonNull reports whether the named field is present and not null.
func (d *Document) HasNonNull(name string) bool {
	v, ok := d.fields[name]
	return ok && v != nil
}

func validateNotReserved(name string) error {
	if reservedFields[name] {
		return &ValidationError{Op: "mutate", Reason: fmt.Sprintf("%q is a reserved field", name)}
	}
	return nil
}

func (d *Document) setRaw(name string, value any) {
	if _, ok := d.fields[name]; !ok {
		d.order = append(d.order, name)
	}
	d.fields[name] = value
}

// SetField sets name to a single scalar value, overwriting any previous
// value (including a sequence).
func (d *Document) SetField(name string, value any) error {
	if err := validateNotReserved(name); err != nil {
		return err
	}
	d.setRaw(name, normalizeScalar(value))
	return nil
}

func normalizeScalar(value any) any {
	if t, ok := value.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return value
}

// IsMultiValued reports whether the named field currently holds a sequence.
func (d *Document) IsMultiValued(name string) bool {
	v, ok := d.fields[name]
	if !ok {
		return false
	}
	_, isSeq := v.([]any)
	return isSeq
}

func (d *Document) convertToList(name string) {
	v, ok := d.fields[name]
	if !ok {
		d.setRaw(name, []any{})
		return
	}
	if list, ok := v.([]any); ok {
		_ = list
		return
	}
	d.fields[name] = []any{v}
}

// AddToField appends value to name, promoting a single-valued field to a
// sequence (the previous scalar becomes element 0), and creating the field
// if absent.
func (d *Document) AddToField(name string, value any) error {
	if err := validateNotReserved(name); err != nil {
		return err
	}
	d.convertToList(name)
	list := d.fields[name].([]any)
	d.fields[name] = append(list, normalizeScalar(value))
	return nil
}

// SetOrAdd sets name to value if absent, otherwise appends value, promoting
// to a sequence on the second call.
func (d *Document) SetOrAdd(name string, value any) error {
	if d.Has(name) {
		return d.AddToField(name, value)
	}
	return d.SetField(name, value)
}

// SetOrAddFrom splices the named field from other into this document,
// promoting to multi-valued on collision. If other does not have the field,
// this is a no-op.
func (d *Document) SetOrAddFrom(name string, other *Document) error {
	if err := validateNotReserved(name); err != nil {
		return err
	}
	otherVal, ok := other.fields[name]
	if !ok {
		return nil
	}
	if !d.Has(name) {
		d.setRaw(name, otherVal)
		return nil
	}
	d.convertToList(name)
	list := d.fields[name].([]any)
	if otherList, ok := otherVal.([]any); ok {
		list = append(list, otherList...)
	} else {
		list = append(list, otherVal)
	}
	d.fields[name] = list
	return nil
}

// SetOrAddAll applies SetOrAddFrom for every non-reserved field of other.
func (d *Document) SetOrAddAll(other *Document) error {
	for _, name := range other.order {
		if err := d.SetOrAddFrom(name, other); err != nil {
			return err
		}
	}
	return nil
}

// RemoveField deletes the named field entirely. A no-op if absent.
func (d *Document) RemoveField(name string) error {
	if err := validateNotReserved(name); err != nil {
		return err
	}
	if _, ok := d.fields[name]; !ok {
		return nil
	}
	delete(d.fields, name)
	for i, n := range d.order {
		if n == name {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
	return nil
}

// RemoveFromArray removes the element at index from a multi-valued field.
// Out-of-range indexes are a documented no-op.
func (d *Document) RemoveFromArray(name string, index int) error {
	if err := validateNotReserved(name); err != nil {
		return err
	}
	v, ok := d.fields[name]
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	if index < 0 || index >= len(list) {
		return nil
	}
	d.fields[name] = append(list[:index], list[index+1:]...)
	return nil
}

// RenameField moves oldName to newName according to mode. The source field
// is always removed. OVERWRITE replaces any existing target; APPEND
// converts the target to a sequence and appends the source value(s); SKIP
// leaves an existing target untouched.
func (d *Document) RenameField(oldName, newName string, mode RenameMode) error {
	if err := validateNotReserved(oldName); err != nil {
		return err
	}
	if err := validateNotReserved(newName); err != nil {
		return err
	}
	oldVal, hadOld := d.fields[oldName]
	d.RemoveField(oldName)
	if !hadOld {
		return nil
	}

	if d.Has(newName) {
		switch mode {
		case Skip:
			return nil
		case Append:
			d.convertToList(newName)
			list := d.fields[newName].([]any)
			if oldList, ok := oldVal.([]any); ok {
				list = append(list, oldList...)
			} else {
				list = append(list, oldVal)
			}
			d.fields[newName] = list
			return nil
		}
	}
	d.setRaw(newName, oldVal)
	return nil
}

// WriteToField is sugar for SetField followed by AddToField with overwrite
// semantics: when overwrite is true the field is replaced by values;
// otherwise values are appended to whatever is already present.
func (d *Document) WriteToField(name string, overwrite bool, values ...any) error {
	if len(values) == 0 {
		return nil
	}
	i := 0
	if overwrite {
		if err := d.SetField(name, values[0]); err != nil {
			return err
		}
		i = 1
	}
	for ; i < len(values); i++ {
		if err := d.AddToField(name, values[i]); err != nil {
			return err
		}
	}
	return nil
}

// GetString returns the named field as a string. For a multi-valued field
// this is the first element. Returns ("", false) if absent or null.
func (d *Document) GetString(name string) (string, bool) {
	v, ok := d.fields[name]
	if !ok || v == nil {
		return "", false
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 || list[0] == nil {
			return "", false
		}
		v = list[0]
	}
	s, ok := v.(string)
	return s, ok
}

// GetStringList returns the named field as a sequence of strings. A
// single-valued field is returned as a one-element sequence.
func (d *Document) GetStringList(name string) ([]string, bool) {
	v, ok := d.fields[name]
	if !ok {
		return nil, false
	}
	if list, ok := v.([]any); ok {
		result := make([]string, 0, len(list))
		for _, item := range list {
			if item == nil {
				result = append(result, "")
				continue
			}
			s, _ := item.(string)
			result = append(result, s)
		}
		return result, true
	}
	s, _ := v.(string)
	return []string{s}, true
}

// LogError appends description to the errors field. This is the only
// mutator permitted to touch "errors".
func (d *Document) LogError(description string) {
	d.errors = append(d.errors, description)
}

// Errors returns a copy of the accumulated error log.
func (d *Document) Errors() []string {
	out := make([]string, len(d.errors))
	copy(out, d.errors)
	return out
}

// AddChild appends a deep copy of child to this document's children.
func (d *Document) AddChild(child *Document) {
	d.children = append(d.children, child.Clone())
}

// GetChildren returns deep copies of this document's children, preventing
// aliasing with the document's own tree.
func (d *Document) GetChildren() []*Document {
	out := make([]*Document, len(d.children))
	for i, c := range d.children {
		out[i] = c.Clone()
	}
	return out
}

// Clone produces a deep copy of the document, including its children.
// Mutating the clone never affects the original.
func (d *Document) Clone() *Document {
	clone := &Document{
		id:      d.id,
		runID:   d.runID,
		hasRun:  d.hasRun,
		fields:  make(map[string]any, len(d.fields)),
		order:   append([]string(nil), d.order...),
		errors:  append([]string(nil), d.errors...),
		dropped: d.dropped,
	}
	for k, v := range d.fields {
		clone.fields[k] = deepCopyValue(v)
	}
	for _, c := range d.children {
		clone.children = append(clone.children, c.Clone())
	}
	return clone
}

// CloneWithNewID returns a deep copy of the document with its id replaced.
func (d *Document) CloneWithNewID(newID string) *Document {
	clone := d.Clone()
	clone.id = newID
	return clone
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = deepCopyValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = deepCopyValue(val)
		}
		return out
	default:
		return v
	}
}

// Equal reports structural equality of the payload tree, id, run id and
// children (but not the transient dropped flag, which never survives the
// wire).
func (d *Document) Equal(other *Document) bool {
	if other == nil {
		return false
	}
	if d.id != other.id || d.runID != other.runID || d.hasRun != other.hasRun {
		return false
	}
	if len(d.fields) != len(other.fields) {
		return false
	}
	for k, v := range d.fields {
		ov, ok := other.fields[k]
		if !ok || !deepEqual(v, ov) {
			return false
		}
	}
	if len(d.children) != len(other.children) {
		return false
	}
	for i, c := range d.children {
		if !c.Equal(other.children[i]) {
			return false
		}
	}
	return len(d.errors) == len(other.errors)
}

func deepEqual(a, b any) bool {
	ab, _ := json.Marshal(a)
	bb, _ := json.Marshal(b)
	return string(ab) == string(bb)
}

// AsMap serializes the document to a plain key-to-value tree, including
// reserved fields and children, suitable for sending over the wire.
func (d *Document) AsMap() map[string]any {
	out := make(map[string]any, len(d.fields)+4)
	for _, k := range d.order {
		out[k] = d.fields[k]
	}
	out[IDField] = d.id
	if d.hasRun {
		out[RunIDField] = d.runID
	}
	if len(d.errors) > 0 {
		errs := make([]any, len(d.errors))
		for i, e := range d.errors {
			errs[i] = e
		}
		out[ErrorsField] = errs
	}
	if len(d.children) > 0 {
		children := make([]any, len(d.children))
		for i, c := range d.children {
			children[i] = c.AsMap()
		}
		out[ChildrenField] = children
	}
	return out
}

// MarshalJSON renders the document as canonical JSON.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.AsMap())
}

// UnmarshalJSON parses the document's wire format in place.
func (d *Document) UnmarshalJSON(data []byte) error {
	parsed, err := FromJSON(data)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}

// String renders the document's canonical JSON form.
func (d *Document) String() string {
	b, err := json.Marshal(d)
	if err != nil {
		return fmt.Sprintf("document{id:%s,marshal-error:%v}", d.id, err)
	}
	return string(b)
}
