package variable

import (
	"strconv"

	"forge/internal/document"
	"forge/internal/errs"
)

// BuildElementEnvironment composes project-wide defaults, then the
// project's own variables, then the element's variables (each via
// document.Composite, in that order) and constructs the resulting
// Environment. defaultMaxJobs seeds the built-in max-jobs variable; if
// the composed mapping sets notparallel to true, max-jobs is forced to
// "1" regardless of any other value.
func BuildElementEnvironment(defaults, project, element *document.Node, elementName, projectName string, defaultMaxJobs int) (*Environment, error) {
	merged := emptyMappingLike(defaults)
	if defaults != nil {
		if err := document.Composite(defaults, merged); err != nil {
			return nil, err
		}
	}
	if project != nil {
		if err := document.Composite(project, merged); err != nil {
			return nil, err
		}
	}
	if element != nil {
		if err := document.Composite(element, merged); err != nil {
			return nil, err
		}
	}
	if err := document.AssertNoResidualDirectives(merged); err != nil {
		return nil, err
	}

	env := New()
	var defErr error
	merged.Iterate(func(key string, value *document.Node) {
		if defErr != nil {
			return
		}
		if value.Kind != document.KindScalar {
			defErr = scalarRequiredError(key, value)
			return
		}
		env.Define(key, value.ScalarString(), value.Prov)
	})
	if defErr != nil {
		return nil, defErr
	}

	zeroProv := document.Provenance{}
	env.setBuiltin("element-name", elementName, zeroProv)
	env.setBuiltin("project-name", projectName, zeroProv)
	env.setBuiltin("max-jobs", strconv.Itoa(defaultMaxJobs), zeroProv)

	notparallel, ok := merged.Get("notparallel")
	if ok {
		b, err := notparallel.AsBool()
		if err != nil {
			return nil, err
		}
		if b {
			env.setBuiltin("max-jobs", "1", zeroProv)
		}
	}

	return env, nil
}

func emptyMappingLike(hint *document.Node) *document.Node {
	if hint != nil {
		return document.NewMapping(hint.Prov)
	}
	return document.NewMapping(document.Provenance{})
}

func scalarRequiredError(key string, value *document.Node) error {
	return errs.NewLoad(errs.InvalidData, value.Prov.String(nil), "variable %q must be a scalar, got %s", key, value.Kind)
}
