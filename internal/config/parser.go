package config

// Parse reads configuration content as JSONC (preferred) or YAML.
//
// JSONC is selected when the first non-whitespace character is `{`.
func Parse(content string, base Config) (Config, []Warning, error) {
	switch DetectFormat(content) {
	case FormatNone:
		validatedWarnings, err := Validate(base)
		if err != nil {
			return Config{}, nil, err
		}
		return base, validatedWarnings, nil
	case FormatJSONC:
		return parseJSONC(content, base)
	default:
		return parseYAML(content, base)
	}
}
