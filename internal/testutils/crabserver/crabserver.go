// Package crabserver is a fake CRAB REST server for tests.
package crabserver

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

const (
	DbInstance = "dev"
	User       = "jdoe"
	Version    = "v3.241001"
)

type File struct {
	Name    string
	Content []byte

	// Missing files are listed, but not served.
	Missing bool
}

type Job struct {
	State  string
	Site   string
	Events int

	// run -> lumis processed
	Lumis map[string][]int

	Outputs []File
	Logs    []File
}

type Task struct {
	Name     string
	Status   string
	Type     string
	DryRun   bool
	Warnings []string
	Failure  string

	// run -> [[first, last], ...]
	LumiMask map[string][][2]int

	// jobid -> job
	Jobs map[string]*Job

	// form given at submission
	Form url.Values
}

// Request is a request the server received.
type Request struct {
	Method string
	Path   string
	Form   url.Values
	// subject of the client certificate, if any
	Client string
}

type Server struct {
	*httptest.Server

	mu       sync.Mutex
	tasks    map[string]*Task
	requests []Request
	failures []int

	delay       time.Duration
	downloading int
	maxParallel int
}

// New starts a fake server. It stops when the test ends.
func New(t *testing.T) *Server {
	s := &Server{tasks: map[string]*Task{}}
	s.Server = httptest.NewServer(s.handler())
	t.Cleanup(s.Close)
	return s
}

// NewTLS starts a fake server on https which asks for client certificates.
func NewTLS(t *testing.T) *Server {
	s := &Server{tasks: map[string]*Task{}}
	s.Server = httptest.NewUnstartedServer(s.handler())
	s.Server.TLS = &tls.Config{ClientAuth: tls.RequestClientCert}
	s.Server.StartTLS()
	t.Cleanup(s.Close)
	return s
}

// Root is the REST root URL of the server.
func (s *Server) Root() string {
	return s.URL + "/crabserver/" + DbInstance
}

// CRIC is the CRIC API root of the server.
func (s *Server) CRIC() string {
	return s.URL + "/cric/api"
}

// Host and Port of the server.
func (s *Server) HostPort() (string, int) {
	u, _ := url.Parse(s.URL)
	port, _ := strconv.Atoi(u.Port())
	return u.Hostname(), port
}

func (s *Server) AddTask(task *Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if task.Jobs == nil {
		task.Jobs = map[string]*Job{}
	}
	s.tasks[task.Name] = task
}

// Task returns a snapshot of a task.
func (s *Server) Task(name string) (Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return Task{}, false
	}
	return *t, true
}

// TaskNames lists tasks, sorted.
func (s *Server) TaskNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := []string{}
	for n := range s.tasks {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Requests returns requests received so far, in order.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// FailNext makes the next requests be answered with the given statuses,
// one for each.
func (s *Server) FailNext(status ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, status...)
}

// SlowDownloads delays each file download by d.
func (s *Server) SlowDownloads(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// MaxParallelDownloads is the most downloads served at the same time.
func (s *Server) MaxParallelDownloads() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxParallel
}

func (s *Server) fileURL(task, kind, name string) string {
	return fmt.Sprintf("%s/files/%s/%s/%s", s.URL, url.PathEscape(task), kind, url.PathEscape(name))
}

func (s *Server) handler() http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(s.record)

	e.GET("/crabserver/:instance/workflow", s.getWorkflow)
	e.PUT("/crabserver/:instance/workflow", s.submit)
	e.POST("/crabserver/:instance/workflow", s.postWorkflow)
	e.DELETE("/crabserver/:instance/workflow", s.kill)
	e.GET("/crabserver/:instance/info", s.info)
	e.GET("/files/:task/:kind/:name", s.download)
	e.GET("/cric/api/accounts/user/query/", s.whoami)

	return e
}

func (s *Server) record(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		form, _ := c.FormParams()
		client := ""
		if req.TLS != nil && 0 < len(req.TLS.PeerCertificates) {
			client = req.TLS.PeerCertificates[0].Subject.CommonName
		}

		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: req.Method, Path: req.URL.Path, Form: form, Client: client,
		})
		status := 0
		if 0 < len(s.failures) {
			status, s.failures = s.failures[0], s.failures[1:]
		}
		s.mu.Unlock()

		if status != 0 {
			c.Response().Header().Set("X-Error-Detail", "injected failure")
			return c.String(status, http.StatusText(status))
		}
		return next(c)
	}
}

func result(items ...any) map[string]any {
	if items == nil {
		items = []any{}
	}
	return map[string]any{"result": items}
}

func ok() map[string]any {
	return result(map[string]any{"result": "ok"})
}

func failed(reason string) map[string]any {
	return result(map[string]any{"result": "failed", "reason": reason})
}

func notFound(c echo.Context, workflow string) error {
	c.Response().Header().Set("X-Error-Detail", "task not found")
	return c.JSON(http.StatusNotFound, map[string]any{
		"message": fmt.Sprintf("workflow %s is not found", workflow),
	})
}

func (s *Server) lookup(c echo.Context) (*Task, string, bool) {
	name := c.FormValue("workflow")
	t, ok := s.tasks[name]
	return t, name, ok
}

func (s *Server) submit(c echo.Context) error {
	form, err := c.FormParams()
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]any{"message": err.Error()})
	}
	workflow := form.Get("workflow")
	if workflow == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{"message": "workflow is required"})
	}

	name := fmt.Sprintf("%s:%s_crab_%s", time.Now().UTC().Format("060102_150405"), User, workflow)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; ok {
		return c.JSON(http.StatusOK, failed("duplicated workflow"))
	}
	task := &Task{
		Name:   name,
		Status: "SUBMITTED",
		Type:   form.Get("jobtype"),
		Jobs:   map[string]*Job{},
		Form:   form,
	}
	if form.Get("dryrun") == "1" {
		task.DryRun = true
		task.Status = "UPLOADED"
	}
	s.tasks[name] = task
	return c.JSON(http.StatusOK, result(map[string]any{"RequestName": name}))
}

func (s *Server) getWorkflow(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, name, found := s.lookup(c)
	if !found {
		return notFound(c, name)
	}

	switch c.QueryParam("subresource") {
	case "":
		return c.JSON(http.StatusOK, result(s.status(task)))
	case "data2", "data":
		return c.JSON(http.StatusOK, result(s.files(c, task, "outputs")...))
	case "logs2":
		return c.JSON(http.StatusOK, result(s.files(c, task, "logs")...))
	case "report2":
		jobs := map[string]any{}
		for id, j := range task.Jobs {
			jobs[id] = map[string]any{"state": j.State, "events": j.Events, "lumis": j.Lumis}
		}
		return c.JSON(http.StatusOK, result(map[string]any{
			"lumiMask": task.LumiMask,
			"jobs":     jobs,
		}))
	case "type":
		return c.JSON(http.StatusOK, result(map[string]any{
			"requesttype": task.Type, "dryrun": task.DryRun, "status": task.Status,
		}))
	default:
		return c.JSON(http.StatusBadRequest, map[string]any{"message": "unknown subresource"})
	}
}

func (s *Server) status(task *Task) map[string]any {
	jobs := map[string]any{}
	perStatus := map[string]int{}
	for id, j := range task.Jobs {
		jobs[id] = map[string]any{"State": j.State, "Site": j.Site}
		perStatus[j.State]++
	}
	warnings := task.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return map[string]any{
		"status":         task.Status,
		"username":       User,
		"dryrun":         task.DryRun,
		"taskWarningMsg": warnings,
		"taskFailureMsg": task.Failure,
		"jobsPerStatus":  perStatus,
		"jobs":           jobs,
	}
}

func (s *Server) files(c echo.Context, task *Task, kind string) []any {
	wanted := map[string]bool{}
	if ids := c.QueryParam("jobids"); ids != "" {
		for _, id := range strings.Split(ids, ",") {
			wanted[id] = true
		}
	}
	limit := -1
	if l := c.QueryParam("limit"); l != "" {
		limit, _ = strconv.Atoi(l)
	}

	ids := []string{}
	for id := range task.Jobs {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		na, _ := strconv.Atoi(a)
		nb, _ := strconv.Atoi(b)
		return na - nb
	})

	ret := []any{}
	for _, id := range ids {
		if 0 < len(wanted) && !wanted[id] {
			continue
		}
		files := task.Jobs[id].Outputs
		if kind == "logs" {
			files = task.Jobs[id].Logs
		}
		for _, f := range files {
			if 0 <= limit && limit <= len(ret) {
				return ret
			}
			ret = append(ret, map[string]any{
				"jobid": id,
				"lfn":   "/store/user/" + User + "/" + f.Name,
				"pfn":   s.fileURL(task.Name, kind, f.Name),
				"size":  len(f.Content),
			})
		}
	}
	return ret
}

func (s *Server) postWorkflow(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, name, found := s.lookup(c)
	if !found {
		return notFound(c, name)
	}

	switch c.FormValue("subresource") {
	case "proceed":
		if task.Status != "UPLOADED" {
			return c.JSON(http.StatusOK, failed(fmt.Sprintf("task is %s, not waiting to proceed", task.Status)))
		}
		task.Status = "SUBMITTED"
		task.DryRun = false
		return c.JSON(http.StatusOK, ok())
	case "resubmit2":
		if task.Status == "KILLED" {
			return c.JSON(http.StatusOK, failed("task is KILLED"))
		}
		wanted := map[string]bool{}
		for _, id := range strings.Split(c.FormValue("jobids"), ",") {
			if id != "" {
				wanted[id] = true
			}
		}
		for id, j := range task.Jobs {
			if j.State == "failed" && (len(wanted) == 0 || wanted[id]) {
				j.State = "idle"
			}
		}
		return c.JSON(http.StatusOK, ok())
	default:
		return c.JSON(http.StatusBadRequest, map[string]any{"message": "unknown subresource"})
	}
}

func (s *Server) kill(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task, name, found := s.lookup(c)
	if !found {
		return notFound(c, name)
	}
	if task.Status == "KILLED" {
		return c.JSON(http.StatusOK, failed("task is already KILLED"))
	}
	task.Status = "KILLED"
	if w := c.FormValue("killwarning"); w != "" {
		task.Warnings = append(task.Warnings, w)
	}
	for _, j := range task.Jobs {
		if j.State != "finished" {
			j.State = "killed"
		}
	}
	return c.JSON(http.StatusOK, ok())
}

func (s *Server) info(c echo.Context) error {
	switch c.QueryParam("subresource") {
	case "version":
		return c.JSON(http.StatusOK, result(Version))
	case "backendurls":
		return c.JSON(http.StatusOK, result(map[string]any{
			"htcondorSchedds": []string{"crab3@vocms0155.cern.ch", "crab3@vocms0199.cern.ch"},
			"htcondorPool":    "cmsgwms-collector-global.cern.ch",
			"cacheSSL":        s.URL + "/crabcache",
		}))
	default:
		return c.JSON(http.StatusBadRequest, map[string]any{"message": "unknown subresource"})
	}
}

func (s *Server) download(c echo.Context) error {
	s.mu.Lock()
	task, ok := s.tasks[c.Param("task")]
	var file *File
	if ok {
		for _, j := range task.Jobs {
			files := j.Outputs
			if c.Param("kind") == "logs" {
				files = j.Logs
			}
			for i := range files {
				if files[i].Name == c.Param("name") {
					file = &files[i]
				}
			}
		}
	}
	s.downloading++
	s.maxParallel = max(s.maxParallel, s.downloading)
	delay := s.delay
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.downloading--
		s.mu.Unlock()
	}()

	if 0 < delay {
		time.Sleep(delay)
	}

	if file == nil || file.Missing {
		return c.String(http.StatusNotFound, "no such file")
	}
	return c.Blob(http.StatusOK, "application/octet-stream", file.Content)
}

func (s *Server) whoami(c echo.Context) error {
	if c.QueryParam("preset") != "whoami" {
		return c.JSON(http.StatusBadRequest, map[string]any{"message": "unknown preset"})
	}
	return c.JSON(http.StatusOK, result(map[string]any{
		"login": User,
		"name":  "John Doe",
		"dn":    "/DC=ch/DC=cern/OU=Users/CN=" + User,
	}))
}
