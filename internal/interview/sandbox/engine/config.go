package engine

// Config controls sandbox engine behavior.
type Config struct {
	// HelperPath points at the sandbox-init binary. Empty runs the interpreter directly
	// and applies rlimits to it right after start.
	HelperPath string `yaml:"helperPath"`
	// SeccompProfile is a JSON filter loaded by the helper before exec.
	SeccompProfile       string `yaml:"seccompProfile"`
	EnableSeccomp        bool   `yaml:"enableSeccomp"`
	StdoutStderrMaxBytes int64  `yaml:"stdoutStderrMaxBytes"`
}
