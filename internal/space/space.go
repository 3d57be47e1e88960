package space

// Param is a single named value bound to a dimension within a concrete
// parameter assignment (a Trial's parameters, or a candidate sample).
type Param struct {
	Name  string
	Value Value
}

// Space is an ordered mapping from dimension name to Dimension. Order is
// insertion order, preserved across String/Parse round trips.
type Space struct {
	order []string
	dims  map[string]*Dimension
}

// NewSpace returns an empty, ready-to-use Space.
func NewSpace() *Space {
	return &Space{dims: make(map[string]*Dimension)}
}

// Add registers a dimension. Returns ErrInvalidDefinition if the name is
// already taken.
func (s *Space) Add(d *Dimension) error {
	if _, ok := s.dims[d.Name()]; ok {
		return &ErrInvalidDefinition{Token: d.Name(), Reason: "duplicate dimension name"}
	}
	s.order = append(s.order, d.Name())
	s.dims[d.Name()] = d
	return nil
}

// Get returns the dimension with the given name, if present.
func (s *Space) Get(name string) (*Dimension, bool) {
	d, ok := s.dims[name]
	return d, ok
}

// Names returns dimension names in declaration order.
func (s *Space) Names() []string {
	return append([]string(nil), s.order...)
}

// Len returns the number of dimensions.
func (s *Space) Len() int { return len(s.order) }

// Contains reports whether a parameter assignment is a member of this space:
// every non-defaulted dimension is present with a value inside its prior's
// support, and no extraneous names appear.
func (s *Space) Contains(params []Param) bool {
	byName := make(map[string]Value, len(params))
	for _, p := range params {
		byName[p.Name] = p.Value
	}
	for _, name := range s.order {
		d := s.dims[name]
		v, ok := byName[name]
		if !ok {
			if _, hasDef := d.Default(); hasDef {
				continue
			}
			return false
		}
		if !d.Contains(v) {
			return false
		}
		delete(byName, name)
	}
	return len(byName) == 0
}

// String renders the canonical form of the space: one dimension declaration
// per line, in declaration order. Parse(Canonical(Space)) == Space.
func (s *Space) String() string {
	out := ""
	for i, name := range s.order {
		if i > 0 {
			out += "\n"
		}
		out += s.dims[name].String()
	}
	return out
}

// ParseSpace parses a canonical multi-line space form produced by
// Space.String.
func ParseSpace(canonical string) (*Space, error) {
	sp := NewSpace()
	lines := splitLines(canonical)
	for _, line := range lines {
		if line == "" {
			continue
		}
		d, err := ParseDimension(line)
		if err != nil {
			return nil, err
		}
		if err := sp.Add(d); err != nil {
			return nil, err
		}
	}
	return sp, nil
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}
