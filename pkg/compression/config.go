package compression

// Config selects the algorithm used when compressing a buffer.
type Config struct {
	Type Type `yaml:"type"`
	// Level is passed to the codec unchanged. Zero selects the codec default.
	Level int `yaml:"level"`
	// Threshold is the minimum input size for which compression is tried.
	Threshold int `yaml:"threshold"`
}

// DefaultThreshold matches the smallest buffer worth handing to a codec.
const DefaultThreshold = 64

func DefaultConfig() Config {
	return Config{Type: None, Threshold: DefaultThreshold}
}

func NewConfig(t Type, level int) Config {
	return Config{Type: t, Level: level, Threshold: DefaultThreshold}
}

// Compress compresses src according to cfg and returns the tag that was
// actually used. Inputs below the threshold are stored with None; inputs the
// codec cannot shrink are stored with Uncompressable. In both cases the
// returned slice is src itself.
func Compress(cfg Config, src []byte) (Type, []byte, error) {
	if cfg.Type.Stored() || len(src) < cfg.Threshold {
		return None, src, nil
	}
	c, err := Lookup(cfg.Type)
	if err != nil {
		return None, nil, err
	}
	out, err := c.Compress(make([]byte, 0, len(src)), src, cfg.Level)
	if err != nil {
		return None, nil, err
	}
	if len(out) >= len(src) {
		return Uncompressable, src, nil
	}
	return cfg.Type, out, nil
}

// Decompress reverses Compress. For stored types src is returned as is.
func Decompress(t Type, src []byte, uncompressedLen int) ([]byte, error) {
	if t.Stored() {
		if len(src) != uncompressedLen {
			return nil, lengthError(t, uncompressedLen, len(src))
		}
		return src, nil
	}
	c, err := Lookup(t)
	if err != nil {
		return nil, err
	}
	out, err := c.Decompress(make([]byte, 0, uncompressedLen), src, uncompressedLen)
	if err != nil {
		return nil, err
	}
	if len(out) != uncompressedLen {
		return nil, lengthError(t, uncompressedLen, len(out))
	}
	return out, nil
}
