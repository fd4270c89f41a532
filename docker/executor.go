package docker

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/jsonmessage"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/kbukum/pipegraph/dag"
	"github.com/kbukum/pipegraph/errors"
	"github.com/kbukum/pipegraph/expr"
	"github.com/kbukum/pipegraph/logger"
	"github.com/kbukum/pipegraph/process"
	"github.com/kbukum/pipegraph/resilience"
)

// Container labels set on every step container.
const (
	LabelManagedBy = "managed-by"
	LabelRunID     = "pipegraph.run-id"
	LabelJob       = "pipegraph.job"
	LabelInstance  = "pipegraph.instance"
	LabelStep      = "pipegraph.step"

	managedBy = "pipegraph"
)

const cleanupTimeout = 30 * time.Second

// Executor runs each step in its own container.
type Executor struct {
	client     Client
	cfg        Config
	containers *resilience.Bulkhead
	pull       resilience.RetryConfig
	log        *logger.Logger
}

var _ dag.StepExecutor = (*Executor)(nil)

// New connects to the daemon and returns an executor. Defaults are applied to cfg.
func New(cfg Config, log *logger.Logger) (*Executor, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cli, err := NewClient(&cfg)
	if err != nil {
		return nil, err
	}
	return NewWithClient(cli, cfg, log), nil
}

// NewWithClient returns an executor that talks to the daemon through cli.
func NewWithClient(cli Client, cfg Config, log *logger.Logger) *Executor {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.Nop()
	}
	log = log.WithComponent("executor.docker")

	pull := resilience.DefaultRetryConfig()
	pull.MaxAttempts = cfg.PullRetries
	pull.RetryIf = func(err error) bool {
		return resilience.DefaultRetryIf(err) && !client.IsErrNotFound(err)
	}
	pull.OnRetry = func(attempt int, err error, backoff time.Duration) {
		log.Warn("image pull failed, retrying", logger.Fields("attempt", attempt, logger.FieldError, err.Error(), "backoff_ms", backoff.Milliseconds()))
	}

	return &Executor{
		client: cli,
		cfg:    cfg,
		containers: resilience.NewBulkhead(resilience.BulkheadConfig{
			Name:          "containers",
			MaxConcurrent: cfg.MaxContainers,
			MaxWait:       resilience.WaitForever,
		}),
		pull: pull,
		log:  log,
	}
}

// Ping checks that the daemon is reachable.
func (e *Executor) Ping(ctx context.Context) error {
	if _, err := e.client.Ping(ctx); err != nil {
		return errors.ExecutorError(dag.TagExecutor, err).WithDetail("host", e.cfg.Host)
	}
	return nil
}

// Close releases the daemon connection.
func (e *Executor) Close() error {
	return e.client.Close()
}

// Execute runs step in a new container and removes it afterwards.
func (e *Executor) Execute(ctx context.Context, step dag.StepSpec, sc dag.StepContext) dag.Outcome {
	ref, err := e.imageFor(step, sc)
	if err != nil {
		return dag.ExecutorFailed(dag.TagExecutor, err)
	}
	log := e.log.WithFields(logger.Fields(logger.FieldInstance, sc.InstanceID, logger.FieldStep, step.Name, logger.FieldImage, ref))

	release, err := e.containers.Acquire(ctx)
	if err != nil {
		return contextOutcome(ctx, err)
	}
	defer release()

	if err := e.ensureImage(ctx, ref, log); err != nil {
		return e.apiFailure(ctx, "pull image "+ref, err)
	}

	cfg, hostCfg, netCfg, err := e.buildConfigs(ref, step, sc)
	if err != nil {
		return dag.ExecutorFailed(dag.TagExecutor, err)
	}
	platform, _ := e.cfg.platform()
	created, err := e.client.ContainerCreate(ctx, cfg, hostCfg, netCfg, platform, "")
	if err != nil {
		return e.apiFailure(ctx, "create container", err)
	}
	id := created.ID
	log = log.WithFields(logger.Fields(logger.FieldContainer, shortID(id)))
	defer e.remove(ctx, id, log)

	if err := e.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return e.apiFailure(ctx, "start container", err)
	}
	log.Debug("container started")

	waitCh, errCh := e.client.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case res := <-waitCh:
		output := e.output(ctx, id, log)
		if res.Error != nil && res.Error.Message != "" {
			out := dag.ExecutorFailed(dag.TagExecutor, fmt.Errorf("docker: wait container: %s", res.Error.Message))
			out.Output = output
			return out
		}
		if res.StatusCode != 0 {
			return dag.Failed(int(res.StatusCode), output)
		}
		return dag.Succeeded(output)

	case err := <-errCh:
		if ctx.Err() != nil {
			return e.stopped(ctx, id, log)
		}
		return e.apiFailure(ctx, "wait container", err)

	case <-ctx.Done():
		return e.stopped(ctx, id, log)
	}
}

func (e *Executor) imageFor(step dag.StepSpec, sc dag.StepContext) (string, error) {
	src := step.Image
	if src == "" {
		src = e.cfg.DefaultImage
	}
	if src == "" {
		return "", errors.InvalidInput("image", fmt.Sprintf("step %q has no image and no default image is configured", step.Name))
	}
	ref, err := expr.Render(src, expr.ScopeFor(sc))
	if err != nil {
		return "", err
	}
	if ref == "" {
		return "", errors.InvalidInput("image", fmt.Sprintf("image %q rendered empty", src))
	}
	return ref, nil
}

func (e *Executor) ensureImage(ctx context.Context, ref string, log *logger.Logger) error {
	if e.cfg.PullPolicy != PullAlways {
		_, _, err := e.client.ImageInspectWithRaw(ctx, ref)
		if err == nil {
			return nil
		}
		if e.cfg.PullPolicy == PullNever {
			return fmt.Errorf("image not present and pull policy is %q: %w", PullNever, err)
		}
	}

	log.Info("pulling image")
	return resilience.RetryFunc(ctx, e.pull, func() error {
		reader, err := e.client.ImagePull(ctx, ref, image.PullOptions{Platform: e.cfg.Platform})
		if err != nil {
			return err
		}
		defer reader.Close()
		// errors found mid-stream are reported as JSON messages
		return jsonmessage.DisplayJSONMessagesStream(reader, io.Discard, 0, false, nil)
	})
}

func (e *Executor) buildConfigs(ref string, step dag.StepSpec, sc dag.StepContext) (*container.Config, *container.HostConfig, *network.NetworkingConfig, error) {
	cfg := &container.Config{
		Image:      ref,
		Entrypoint: append([]string(nil), e.cfg.Shell...),
		Cmd:        []string{step.Run},
		Env:        process.StepEnv(step, sc),
		WorkingDir: e.cfg.WorkDir,
		Labels: map[string]string{
			LabelManagedBy: managedBy,
			LabelRunID:     sc.RunID,
			LabelJob:       sc.JobID,
			LabelInstance:  sc.InstanceID,
			LabelStep:      step.Name,
		},
	}

	hostCfg := &container.HostConfig{}
	if e.cfg.Workspace != "" {
		hostCfg.Binds = []string{e.cfg.Workspace + ":" + e.cfg.WorkDir + ":rw"}
	}
	mem, err := e.cfg.memoryBytes()
	if err != nil {
		return nil, nil, nil, err
	}
	cpus, err := e.cfg.nanoCPUs()
	if err != nil {
		return nil, nil, nil, err
	}
	hostCfg.Resources.Memory = mem
	hostCfg.Resources.NanoCPUs = cpus

	var netCfg *network.NetworkingConfig
	switch e.cfg.Network {
	case "", "bridge":
	case "host", "none":
		hostCfg.NetworkMode = container.NetworkMode(e.cfg.Network)
	default:
		netCfg = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{e.cfg.Network: {}},
		}
	}
	return cfg, hostCfg, netCfg, nil
}

// output returns the container's demultiplexed stdout and stderr, keeping
// the tail when it exceeds MaxOutputBytes.
func (e *Executor) output(ctx context.Context, id string, log *logger.Logger) string {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()

	reader, err := e.client.ContainerLogs(ctx, id, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		log.Warn("could not read container logs", logger.Fields(logger.FieldError, err.Error()))
		return ""
	}
	defer reader.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, reader); err != nil {
		log.Warn("could not demultiplex container logs", logger.Fields(logger.FieldError, err.Error()))
	}
	out := buf.Bytes()
	if n := e.cfg.MaxOutputBytes; n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return string(out)
}

// stopped stops a container whose context ended and reports the context outcome.
func (e *Executor) stopped(ctx context.Context, id string, log *logger.Logger) dag.Outcome {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.GracePeriod+cleanupTimeout)
	defer cancel()

	grace := int(e.cfg.GracePeriod.Seconds())
	if err := e.client.ContainerStop(stopCtx, id, container.StopOptions{Timeout: &grace}); err != nil {
		log.Warn("could not stop container", logger.Fields(logger.FieldError, err.Error()))
	}
	out := contextOutcome(ctx, ctx.Err())
	out.Output = e.output(ctx, id, log)
	return out
}

func (e *Executor) remove(ctx context.Context, id string, log *logger.Logger) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := e.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		log.Warn("could not remove container", logger.Fields(logger.FieldError, err.Error()))
	}
}

// apiFailure reports a daemon error, unless it was caused by ctx ending.
func (e *Executor) apiFailure(ctx context.Context, op string, err error) dag.Outcome {
	if ctx.Err() != nil {
		return contextOutcome(ctx, ctx.Err())
	}
	return dag.ExecutorFailed(dag.TagExecutor, fmt.Errorf("docker: %s: %w", op, err))
}

func contextOutcome(ctx context.Context, err error) dag.Outcome {
	if err == nil {
		err = ctx.Err()
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return dag.ExecutorFailed(dag.TagTimeout, err)
	}
	return dag.ExecutorFailed(dag.TagCanceled, err)
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
