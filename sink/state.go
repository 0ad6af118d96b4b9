package sink

// State is carried from one record to the next.
// It is immutable after construction: the template is cloned for each
// record and the parameters are only read, so the State handed to the next
// record is the one the previous record received.
type State struct {
	Template   Template
	Parameters []Parameter
}

// NewState builds the template and captures the url parameters of config.
func NewState(config HTTPConfig, opts ...TemplateOption) (State, error) {
	var result State
	template, err := BuildTemplate(config, opts...)
	if err != nil {
		return result, err
	}
	result.Template = template
	result.Parameters = append([]Parameter(nil), config.URLParameters...)
	return result, nil
}
