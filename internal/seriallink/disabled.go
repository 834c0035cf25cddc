package seriallink

// Disabled is the Conn used when no actuator board is attached. Sends are
// dropped and no telemetry is ever read, so hardware-derived fields stay
// absent.
type Disabled struct{}

func NewDisabled() *Disabled { return &Disabled{} }

func (*Disabled) Send(int, string) error { return nil }

func (*Disabled) ReadLine() (ParseResult, bool) { return ParseResult{}, false }

func (*Disabled) Present() bool { return false }

func (*Disabled) Close() error { return nil }
