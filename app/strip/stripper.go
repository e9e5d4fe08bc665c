// Package strip turns the HTML found in feed bodies into plain text.
package strip

// Stripper accumulates markup with Feed, converts it on Close and exposes the
// result through Data until Reset.
type Stripper interface {
	Feed(markup string)
	Close() error
	Data() string
	Reset()
}

// New returns the external program stripper when program is set and the
// in-process one otherwise.
func New(program string) Stripper {
	if program != "" {
		return NewProgramStripper(program)
	}
	return NewHTMLStripper()
}

// Run feeds markup through s and resets it afterwards.
func Run(s Stripper, markup string) (string, error) {
	defer s.Reset()

	s.Feed(markup)
	if err := s.Close(); err != nil {
		return "", err
	}
	return s.Data(), nil
}
