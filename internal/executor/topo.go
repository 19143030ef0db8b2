package executor

import (
	"fmt"
	"sort"

	stageerr "github.com/stagecraft/engine/pkg/errors"
	"github.com/stagecraft/engine/pkg/workflow"
)

// visitState tracks a job's position in the DFS used for topo-sorting.
type visitState int

const (
	unvisited visitState = iota
	inProgress
	done
)

// TopoSortJobs orders jobs by `needs` (§4.7 step 4). Unknown needs are
// already rejected at Definition.Validate time; this pass only has to catch
// cycles, reporting the path that closed the loop.
func TopoSortJobs(jobs map[string]workflow.Job) ([]string, error) {
	names := make([]string, 0, len(jobs))
	for name := range jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	state := make(map[string]visitState, len(jobs))
	var order []string
	var path []string

	var visit func(name string) error
	visit = func(name string) error {
		switch state[name] {
		case done:
			return nil
		case inProgress:
			cyclePath := append(append([]string{}, path...), name)
			return stageerr.New(stageerr.KindGraph, stageerr.CodeCircularDependency, "executor.topo_sort",
				fmt.Sprintf("circular dependency: %v", cyclePath))
		}

		state[name] = inProgress
		path = append(path, name)

		job := jobs[name]
		for _, need := range job.Needs {
			if err := visit(need); err != nil {
				return err
			}
		}

		path = path[:len(path)-1]
		state[name] = done
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
