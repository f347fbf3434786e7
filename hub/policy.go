package hub

// PublicName maps a backend tool's original name through the exposure
// policy. it returns the name the hub publishes for the tool and whether the
// tool is visible at all.
func (p *ExposureConfig) PublicName(original string) (string, bool) {
	if p == nil {
		return original, true
	}
	if len(p.Exposed) > 0 {
		// the exposed list is authoritative, hidden entries are ignored
		for _, e := range p.Exposed {
			if e.Original == original {
				if e.Exposed != "" {
					return e.Exposed, true
				}
				return original, true
			}
		}
		return "", false
	}
	for _, hidden := range p.Hidden {
		if hidden == original {
			return "", false
		}
	}
	return original, true
}

// remap builds the public-to-original rename table for a policy. renames are
// fixed at connect time, so the table is derived once per handle.
func (p *ExposureConfig) remap() map[string]string {
	if p == nil || len(p.Exposed) == 0 {
		return nil
	}
	m := make(map[string]string)
	for _, e := range p.Exposed {
		if e.Exposed != "" && e.Exposed != e.Original {
			m[e.Exposed] = e.Original
		}
	}
	if len(m) == 0 {
		return nil
	}
	return m
}

// checkCallable enforces the exposure policy at call time against the
// backend's original tool name. callers translate public names first.
func (p *ExposureConfig) checkCallable(backend, original string) error {
	if p == nil {
		return nil
	}
	if len(p.Exposed) > 0 {
		for _, e := range p.Exposed {
			if e.Original == original {
				return nil
			}
		}
		return &ToolNotExposedError{Backend: backend, Tool: original}
	}
	for _, hidden := range p.Hidden {
		if hidden == original {
			return &ToolHiddenError{Backend: backend, Tool: original}
		}
	}
	return nil
}
