package genicam

import (
	"fmt"
	"slices"
	"strconv"
	"sync"
)

// Node describes a single feature held in a NodeMap.
type Node struct {
	Name     string
	Type     Type
	ReadOnly bool

	// Bounds for TypeInt and TypeFloat. Ignored when Max <= Min.
	Min, Max   int64
	FMin, FMax float64

	// Entries lists the valid values of a TypeEnum node.
	Entries []string

	// Selector names the enumeration node indexing this node's value.
	Selector string

	// Value is the initial value for an unselected node. Selected nodes
	// take their initial values from Selected, keyed by selector entry.
	Value    any
	Selected map[string]any
}

// WriteHook is notified after a feature write succeeds.
type WriteHook func(name string, value any)

// NodeMap is a thread-safe in-memory feature tree implementing Device.
type NodeMap struct {
	mu       sync.RWMutex
	nodes    map[string]*Node
	values   map[string]map[string]any
	commands map[string]func() error
	readers  map[string]func() (any, error)
	hooks    []WriteHook
}

// NewNodeMap returns an empty node map.
func NewNodeMap() *NodeMap {
	return &NodeMap{
		nodes:    make(map[string]*Node),
		values:   make(map[string]map[string]any),
		commands: make(map[string]func() error),
		readers:  make(map[string]func() (any, error)),
	}
}

// Add registers node, replacing any node with the same name.
func (m *NodeMap) Add(node Node) error {
	if node.Name == "" {
		return fmt.Errorf("node without name")
	}
	vals := make(map[string]any)
	if node.Selector == "" {
		v, err := coerce(&node, node.Value)
		if err != nil {
			return featureErr("add", node.Name, err)
		}
		vals[""] = v
	} else {
		for key, raw := range node.Selected {
			v, err := coerce(&node, raw)
			if err != nil {
				return featureErr("add", node.Name, err)
			}
			vals[key] = v
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	n := node
	n.Entries = slices.Clone(node.Entries)
	m.nodes[node.Name] = &n
	m.values[node.Name] = vals
	return nil
}

// OnCommand installs the action run when the command feature name executes.
func (m *NodeMap) OnCommand(name string, fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commands[name] = fn
}

// OnRead makes name a computed feature: reads return fn's result, coerced
// to the node type. fn runs without the map lock held.
func (m *NodeMap) OnRead(name string, fn func() (any, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readers[name] = fn
}

// ValueAt returns the stored value of name for selector entry key, without
// touching the selector. Unselected nodes ignore key.
func (m *NodeMap) ValueAt(name, key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[name]
	if !ok {
		return nil, false
	}
	if n.Selector == "" {
		key = ""
	}
	v, ok := m.values[name][key]
	return v, ok
}

// OnWrite registers a hook called after every successful write.
func (m *NodeMap) OnWrite(hook WriteHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hooks = append(m.hooks, hook)
}

// Names returns all registered feature names, sorted.
func (m *NodeMap) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.nodes))
	for name := range m.nodes {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Node returns a copy of the node definition for name.
func (m *NodeMap) Node(name string) (Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[name]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// lookup resolves the node and the selector key under a held lock.
func (m *NodeMap) lookup(op, name string) (*Node, string, error) {
	n, ok := m.nodes[name]
	if !ok {
		return nil, "", featureErr(op, name, ErrNotFound)
	}
	key := ""
	if n.Selector != "" {
		sel, ok := m.values[n.Selector]
		if !ok {
			return nil, "", featureErr(op, name, fmt.Errorf("selector %s: %w", n.Selector, ErrNotFound))
		}
		key, _ = sel[""].(string)
	}
	return n, key, nil
}

func (m *NodeMap) get(op, name string) (*Node, any, error) {
	m.mu.RLock()
	n, key, err := m.lookup(op, name)
	if err != nil {
		m.mu.RUnlock()
		return nil, nil, err
	}
	read := m.readers[name]
	v, ok := m.values[name][key]
	m.mu.RUnlock()

	if read != nil {
		raw, err := read()
		if err != nil {
			return n, nil, featureErr(op, name, err)
		}
		if v, err = coerce(n, raw); err != nil {
			return n, nil, featureErr(op, name, err)
		}
		return n, v, nil
	}
	if !ok {
		return n, nil, featureErr(op, name, ErrAccess)
	}
	return n, v, nil
}

// FeatureType implements Inquirer.
func (m *NodeMap) FeatureType(name string) (Type, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[name]
	if !ok {
		return TypeUnknown, featureErr("type", name, ErrNotFound)
	}
	return n.Type, nil
}

// String implements Inquirer. Non-string types are formatted.
func (m *NodeMap) String(name string) (string, error) {
	n, v, err := m.get("inquire", name)
	if err != nil {
		return "", err
	}
	switch n.Type {
	case TypeString, TypeEnum:
		return v.(string), nil
	case TypeInt:
		return strconv.FormatInt(v.(int64), 10), nil
	case TypeFloat:
		return strconv.FormatFloat(v.(float64), 'g', -1, 64), nil
	case TypeBool:
		return strconv.FormatBool(v.(bool)), nil
	default:
		return "", featureErr("inquire", name, ErrType)
	}
}

// Int implements Inquirer.
func (m *NodeMap) Int(q Query, name string) (int64, error) {
	n, v, err := m.get("inquire", name)
	if err != nil {
		return 0, err
	}
	if n.Type != TypeInt {
		return 0, featureErr("inquire", name, ErrType)
	}
	switch q {
	case QueryMin:
		return n.Min, nil
	case QueryMax:
		return n.Max, nil
	default:
		return v.(int64), nil
	}
}

// Float implements Inquirer. Integer features are converted.
func (m *NodeMap) Float(q Query, name string) (float64, error) {
	n, v, err := m.get("inquire", name)
	if err != nil {
		return 0, err
	}
	switch n.Type {
	case TypeFloat:
		switch q {
		case QueryMin:
			return n.FMin, nil
		case QueryMax:
			return n.FMax, nil
		default:
			return v.(float64), nil
		}
	case TypeInt:
		switch q {
		case QueryMin:
			return float64(n.Min), nil
		case QueryMax:
			return float64(n.Max), nil
		default:
			return float64(v.(int64)), nil
		}
	default:
		return 0, featureErr("inquire", name, ErrType)
	}
}

// Bool implements Inquirer.
func (m *NodeMap) Bool(name string) (bool, error) {
	n, v, err := m.get("inquire", name)
	if err != nil {
		return false, err
	}
	if n.Type != TypeBool {
		return false, featureErr("inquire", name, ErrType)
	}
	return v.(bool), nil
}

// EnumEntries implements Inquirer.
func (m *NodeMap) EnumEntries(name string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n, ok := m.nodes[name]
	if !ok {
		return nil, featureErr("entries", name, ErrNotFound)
	}
	if n.Type != TypeEnum {
		return nil, featureErr("entries", name, ErrType)
	}
	return slices.Clone(n.Entries), nil
}

func (m *NodeMap) set(name string, raw any) error {
	m.mu.Lock()
	n, key, err := m.lookup("control", name)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	if n.ReadOnly || n.Type == TypeCommand {
		m.mu.Unlock()
		return featureErr("control", name, ErrAccess)
	}
	v, err := coerce(n, raw)
	if err != nil {
		m.mu.Unlock()
		return featureErr("control", name, err)
	}
	if err := checkRange(n, v); err != nil {
		m.mu.Unlock()
		return featureErr("control", name, err)
	}
	m.values[name][key] = v
	hooks := slices.Clone(m.hooks)
	m.mu.Unlock()

	for _, hook := range hooks {
		hook(name, v)
	}
	return nil
}

// SetString implements Controller. Numeric and boolean features parse value.
func (m *NodeMap) SetString(name, value string) error { return m.set(name, value) }

// SetInt implements Controller.
func (m *NodeMap) SetInt(name string, value int64) error { return m.set(name, value) }

// SetFloat implements Controller.
func (m *NodeMap) SetFloat(name string, value float64) error { return m.set(name, value) }

// SetBool implements Controller.
func (m *NodeMap) SetBool(name string, value bool) error { return m.set(name, value) }

// Execute implements Controller.
func (m *NodeMap) Execute(name string) error {
	m.mu.RLock()
	n, ok := m.nodes[name]
	fn := m.commands[name]
	m.mu.RUnlock()
	if !ok {
		return featureErr("execute", name, ErrNotFound)
	}
	if n.Type != TypeCommand {
		return featureErr("execute", name, ErrType)
	}
	if fn == nil {
		return nil
	}
	if err := fn(); err != nil {
		return featureErr("execute", name, err)
	}
	return nil
}

// coerce converts raw to the canonical Go type of n.
func coerce(n *Node, raw any) (any, error) {
	switch n.Type {
	case TypeString:
		switch v := raw.(type) {
		case nil:
			return "", nil
		case string:
			return v, nil
		}
	case TypeEnum:
		switch v := raw.(type) {
		case nil:
			if len(n.Entries) > 0 {
				return n.Entries[0], nil
			}
			return "", nil
		case string:
			return v, nil
		}
	case TypeInt:
		switch v := raw.(type) {
		case nil:
			return n.Min, nil
		case int64:
			return v, nil
		case int:
			return int64(v), nil
		case float64:
			return int64(v), nil
		case string:
			i, err := strconv.ParseInt(v, 0, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrType, err)
			}
			return i, nil
		}
	case TypeFloat:
		switch v := raw.(type) {
		case nil:
			return n.FMin, nil
		case float64:
			return v, nil
		case int64:
			return float64(v), nil
		case int:
			return float64(v), nil
		case string:
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrType, err)
			}
			return f, nil
		}
	case TypeBool:
		switch v := raw.(type) {
		case nil:
			return false, nil
		case bool:
			return v, nil
		case string:
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", ErrType, err)
			}
			return b, nil
		}
	case TypeCommand:
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %T for %s node", ErrType, raw, n.Type)
}

func checkRange(n *Node, v any) error {
	switch n.Type {
	case TypeEnum:
		if !slices.Contains(n.Entries, v.(string)) {
			return fmt.Errorf("%w: %q is not an entry", ErrRange, v)
		}
	case TypeInt:
		i := v.(int64)
		if n.Max > n.Min && (i < n.Min || i > n.Max) {
			return fmt.Errorf("%w: %d not in [%d, %d]", ErrRange, i, n.Min, n.Max)
		}
	case TypeFloat:
		f := v.(float64)
		if n.FMax > n.FMin && (f < n.FMin || f > n.FMax) {
			return fmt.Errorf("%w: %g not in [%g, %g]", ErrRange, f, n.FMin, n.FMax)
		}
	}
	return nil
}
