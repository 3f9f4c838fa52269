package pipeline

import "fmt"

// DuplicateNameError reports two stages or jobs sharing a name.
type DuplicateNameError struct {
	Kind string // "stage" or "job"
	Name string
}

func (e *DuplicateNameError) Error() string {
	return fmt.Sprintf("duplicate %s name %q", e.Kind, e.Name)
}

// CycleError reports a dependency cycle in the stage or job graph.
type CycleError struct {
	Kind string
	Name string // a unit that is part of the cycle
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("%s dependency graph contains a cycle through %q", e.Kind, e.Name)
}

// DanglingDependencyError reports a dependency on a name that is not defined.
type DanglingDependencyError struct {
	Kind       string
	Unit       string
	Dependency string
}

func (e *DanglingDependencyError) Error() string {
	return fmt.Sprintf("%s %q depends on undefined %s %q", e.Kind, e.Unit, e.Kind, e.Dependency)
}

// AddStage appends a stage to the pipeline. Adding a second stage with
// the same name fails with DuplicateNameError.
func (p *Pipeline) AddStage(stage *Stage) error {
	if p.Stage(stage.Name) != nil {
		return &DuplicateNameError{Kind: "stage", Name: stage.Name}
	}
	p.Stages = append(p.Stages, stage)
	return nil
}

// Validate checks the whole definition: unique names, no dangling
// dependencies and no cycles, for stages and for jobs within each stage.
func (p *Pipeline) Validate() error {
	names := make([]string, 0, len(p.Stages))
	deps := make(map[string][]string, len(p.Stages))
	seen := make(map[string]bool, len(p.Stages))

	for _, stage := range p.Stages {
		if seen[stage.Name] {
			return &DuplicateNameError{Kind: "stage", Name: stage.Name}
		}
		seen[stage.Name] = true
		names = append(names, stage.Name)
		deps[stage.Name] = stage.DependsOn
	}

	if _, err := ComputeOrder("stage", names, deps); err != nil {
		return err
	}

	for _, stage := range p.Stages {
		if err := stage.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks job names and the job dependency graph of one stage.
func (s *Stage) Validate() error {
	names := make([]string, 0, len(s.Jobs))
	deps := make(map[string][]string, len(s.Jobs))
	seen := make(map[string]bool, len(s.Jobs))

	for _, job := range s.Jobs {
		if seen[job.Name] {
			return &DuplicateNameError{Kind: "job", Name: job.Name}
		}
		seen[job.Name] = true
		names = append(names, job.Name)
		deps[job.Name] = job.DependsOn
	}

	_, err := ComputeOrder("job", names, deps)
	return err
}

// StageOrder returns the stage names in an order where every dependency
// comes before its dependents.
func (p *Pipeline) StageOrder() ([]string, error) {
	names := make([]string, 0, len(p.Stages))
	deps := make(map[string][]string, len(p.Stages))
	for _, stage := range p.Stages {
		names = append(names, stage.Name)
		deps[stage.Name] = stage.DependsOn
	}
	return ComputeOrder("stage", names, deps)
}

// JobOrder returns the stage's job names in dependency order.
func (s *Stage) JobOrder() ([]string, error) {
	names := make([]string, 0, len(s.Jobs))
	deps := make(map[string][]string, len(s.Jobs))
	for _, job := range s.Jobs {
		names = append(names, job.Name)
		deps[job.Name] = job.DependsOn
	}
	return ComputeOrder("job", names, deps)
}

const (
	colorWhite = iota // not visited
	colorGray         // on the current DFS path
	colorBlack        // done
)

// ComputeOrder topologically sorts units by depth-first post-order
// traversal: every dependency is visited (and appended) before the unit
// that declares it. Units forming a cycle are rejected with CycleError,
// dependencies on undefined names with DanglingDependencyError.
// Independent units keep their declaration order; callers must not rely
// on any ordering beyond dependency-before-dependent.
func ComputeOrder(kind string, names []string, deps map[string][]string) ([]string, error) {
	defined := make(map[string]bool, len(names))
	for _, name := range names {
		defined[name] = true
	}

	color := make(map[string]int, len(names))
	order := make([]string, 0, len(names))

	var visit func(name string) error
	visit = func(name string) error {
		switch color[name] {
		case colorBlack:
			return nil
		case colorGray:
			return &CycleError{Kind: kind, Name: name}
		}
		color[name] = colorGray
		for _, dep := range deps[name] {
			if !defined[dep] {
				return &DanglingDependencyError{Kind: kind, Unit: name, Dependency: dep}
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		color[name] = colorBlack
		order = append(order, name)
		return nil
	}

	for _, name := range names {
		if err := visit(name); err != nil {
			return nil, err
		}
	}
	return order, nil
}
