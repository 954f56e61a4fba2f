package proc

import (
	"sort"

	"golang.org/x/sys/unix"
)

// Registry tracks background children that have not been observed to
// terminate. It is owned by a single session and is not safe for concurrent
// use.
type Registry struct {
	jobs map[int]Job
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[int]Job)}
}

// Register records a background job.
func (r *Registry) Register(job Job) {
	r.jobs[job.Pid] = job
}

// Len is the number of outstanding jobs.
func (r *Registry) Len() int {
	return len(r.jobs)
}

// Jobs lists outstanding jobs in launch order.
func (r *Registry) Jobs() []Job {
	out := make([]Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Started.Equal(out[j].Started) {
			return out[i].Pid < out[j].Pid
		}
		return out[i].Started.Before(out[j].Started)
	})
	return out
}

// Reaped is a child collected by ReapAll.
type Reaped struct {
	Job    Job
	Status int
	// Registered is false for children that were never registered.
	Registered bool
}

// ReapAll collects every child that has already terminated, registered or
// not, without blocking. Having nothing to collect is not an error.
func (r *Registry) ReapAll() []Reaped {
	var out []Reaped
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG, nil)
		if err == unix.EINTR {
			continue
		}
		if err != nil || pid <= 0 {
			return out
		}

		job, ok := r.jobs[pid]
		if ok {
			delete(r.jobs, pid)
		} else {
			job = Job{Pid: pid}
		}
		out = append(out, Reaped{Job: job, Status: exitStatus(ws), Registered: ok})
	}
}
