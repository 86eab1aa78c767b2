package embedding

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"inu/internal/domain"
)

const DefaultONNXVersion = "mobilenetv2-10"

// Output lengths in this range look like ImageNet class logits rather than
// a pooled feature vector.
const (
	logitsMinLen = 900
	logitsMaxLen = 1100
)

var featureOutputPattern = regexp.MustCompile(`(?i)embedding|feature|pool|avg`)

// tensorInfo describes a model input or output.
type tensorInfo struct {
	Name  string
	Shape []int64
}

func (t tensorInfo) String() string {
	if len(t.Shape) == 0 {
		return t.Name
	}
	dims := make([]string, len(t.Shape))
	for i, d := range t.Shape {
		dims[i] = fmt.Sprint(d)
	}
	return t.Name + "[" + strings.Join(dims, "x") + "]"
}

// modelRuntime loads models into inference sessions.
type modelRuntime interface {
	Inspect(model []byte) (inputs, outputs []tensorInfo, err error)
	NewSession(model []byte, input, output string, threads int) (inferenceSession, error)
}

// inferenceSession runs a single-input, single-output forward pass. It is
// safe for concurrent use.
type inferenceSession interface {
	Run(input []float32) ([]float32, error)
	Destroy() error
}

type ONNXOptions struct {
	Source      ModelSource
	OutputName  string // empty selects a feature-like output
	Version     string
	Threads     int
	LibraryPath string // onnxruntime shared library
	Logger      *slog.Logger
}

// ONNXEmbedder embeds images with a frozen ONNX feature extractor. The model
// is loaded lazily on the first Embed call and concurrent first callers share
// one initialization attempt. A failed initialization is permanent for the
// instance unless the error is retryable (for example a timed out model
// download), in which case the next Embed call tries again.
type ONNXEmbedder struct {
	opts    ONNXOptions
	logger  *slog.Logger
	runtime modelRuntime

	mu         sync.Mutex
	attempt    *initAttempt
	initErr    error // sticky, non-retryable
	session    inferenceSession
	outputName string
	outputs    []tensorInfo

	infoOnce sync.Once
}

// initAttempt is an in-flight initialization shared by concurrent callers.
type initAttempt struct {
	done chan struct{}
	err  error
}

// errClosed is returned by Embed after Close.
var errClosed = fmt.Errorf("%w: embedder closed", domain.ErrInitialization)

func NewONNXEmbedder(opts ONNXOptions) *ONNXEmbedder {
	return newONNXEmbedder(opts, newORTRuntime(opts.LibraryPath))
}

func newONNXEmbedder(opts ONNXOptions, rt modelRuntime) *ONNXEmbedder {
	if opts.Version == "" {
		opts.Version = DefaultONNXVersion
	}
	if opts.Threads <= 0 {
		opts.Threads = 4
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &ONNXEmbedder{
		opts:    opts,
		logger:  logger,
		runtime: rt,
	}
}

func (e *ONNXEmbedder) Version() string {
	return e.opts.Version
}

func (e *ONNXEmbedder) Embed(ctx context.Context, image []byte) (domain.Embedding, error) {
	if len(image) == 0 {
		return domain.Embedding{}, domain.ErrEmptyInput
	}

	session, err := e.init(ctx)
	if err != nil {
		return domain.Embedding{}, err
	}

	img, err := DecodeImage(image)
	if err != nil {
		return domain.Embedding{}, err
	}
	tensor, err := Preprocess(img)
	if err != nil {
		return domain.Embedding{}, err
	}

	out, err := session.Run(tensor)
	if err != nil {
		return domain.Embedding{}, fmt.Errorf("run model: %w", err)
	}
	if len(out) == 0 {
		return domain.Embedding{}, fmt.Errorf("model output %s is empty", e.outputName)
	}

	vec := L2Normalize(out)
	e.logModelInfo(len(vec))

	return domain.Embedding{Vector: vec, Version: e.opts.Version}, nil
}

// Close releases the inference session. Embed fails after Close.
func (e *ONNXEmbedder) Close() error {
	e.mu.Lock()
	session := e.session
	e.session = nil
	e.initErr = errClosed
	e.mu.Unlock()

	if session != nil {
		return session.Destroy()
	}
	return nil
}

func (e *ONNXEmbedder) init(ctx context.Context) (inferenceSession, error) {
	e.mu.Lock()
	if e.initErr != nil {
		e.mu.Unlock()
		return nil, e.initErr
	}
	if e.session != nil {
		session := e.session
		e.mu.Unlock()
		return session, nil
	}
	if a := e.attempt; a != nil {
		e.mu.Unlock()
		<-a.done
		if a.err != nil {
			return nil, a.err
		}
		return e.init(ctx)
	}

	a := &initAttempt{done: make(chan struct{})}
	e.attempt = a
	e.mu.Unlock()

	// the first caller's cancellation must not poison later callers
	session, output, outputs, err := e.load(context.WithoutCancel(ctx))

	e.mu.Lock()
	e.attempt = nil
	switch {
	case err == nil && e.initErr != nil:
		// closed while loading
		session.Destroy()
		err = e.initErr
	case err == nil:
		e.session = session
		e.outputName = output
		e.outputs = outputs
	case !domain.IsRetryable(err):
		e.initErr = err
	}
	a.err = err
	close(a.done)
	e.mu.Unlock()

	if err != nil {
		return nil, err
	}
	return session, nil
}

func (e *ONNXEmbedder) load(ctx context.Context) (inferenceSession, string, []tensorInfo, error) {
	if e.opts.Source == nil {
		return nil, "", nil, fmt.Errorf("%w: no model source configured", domain.ErrInitialization)
	}

	model, err := e.opts.Source.Load(ctx)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: %w", domain.ErrInitialization, err)
	}

	inputs, outputs, err := e.runtime.Inspect(model)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: inspect model %s: %w", domain.ErrInitialization, e.opts.Source, err)
	}
	if len(inputs) == 0 || len(outputs) == 0 {
		return nil, "", nil, fmt.Errorf("%w: model %s has no inputs or outputs", domain.ErrInitialization, e.opts.Source)
	}

	output, err := selectOutput(outputs, e.opts.OutputName)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: %w", domain.ErrInitialization, err)
	}
	if e.opts.OutputName == "" {
		e.logger.Info("embedder output selected",
			"chosen", output,
			"outputs", describe(outputs),
			"note", "set embedding.output_name to override")
	}

	session, err := e.runtime.NewSession(model, inputs[0].Name, output, e.opts.Threads)
	if err != nil {
		return nil, "", nil, fmt.Errorf("%w: create session: %w", domain.ErrInitialization, err)
	}

	return session, output, outputs, nil
}

func (e *ONNXEmbedder) logModelInfo(length int) {
	e.infoOnce.Do(func() {
		e.logger.Info("embedder model info",
			"model", e.opts.Source.String(),
			"output", e.outputName,
			"length", length,
			"outputs", describe(e.outputs))
		if length >= logitsMinLen && length <= logitsMaxLen {
			e.logger.Warn("embedding length looks like classification logits; choose a feature layer via embedding.output_name",
				"length", length)
		}
	})
}

// selectOutput returns preferred when set, else the first output whose name
// looks like a feature layer, else the first output.
func selectOutput(outputs []tensorInfo, preferred string) (string, error) {
	if preferred != "" {
		for _, o := range outputs {
			if o.Name == preferred {
				return preferred, nil
			}
		}
		return "", fmt.Errorf("output %q not found, candidates: %s", preferred, strings.Join(describe(outputs), ", "))
	}
	for _, o := range outputs {
		if featureOutputPattern.MatchString(o.Name) {
			return o.Name, nil
		}
	}
	return outputs[0].Name, nil
}

func describe(infos []tensorInfo) []string {
	out := make([]string, len(infos))
	for i, t := range infos {
		out[i] = t.String()
	}
	return out
}
