package embedding

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

// The onnxruntime environment is process-wide.
var ortEnv struct {
	once sync.Once
	err  error
}

type ortRuntime struct {
	libraryPath string
}

func newORTRuntime(libraryPath string) *ortRuntime {
	return &ortRuntime{libraryPath: libraryPath}
}

func (r *ortRuntime) ensureEnvironment() error {
	ortEnv.once.Do(func() {
		if r.libraryPath != "" {
			ort.SetSharedLibraryPath(r.libraryPath)
		}
		if !ort.IsInitialized() {
			ortEnv.err = ort.InitializeEnvironment()
		}
	})
	return ortEnv.err
}

func (r *ortRuntime) Inspect(model []byte) ([]tensorInfo, []tensorInfo, error) {
	if err := r.ensureEnvironment(); err != nil {
		return nil, nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(model)
	if err != nil {
		return nil, nil, err
	}
	return toTensorInfo(inputs), toTensorInfo(outputs), nil
}

func (r *ortRuntime) NewSession(model []byte, input, output string, threads int) (inferenceSession, error) {
	if err := r.ensureEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, err
	}
	defer opts.Destroy()

	if err := opts.SetIntraOpNumThreads(threads); err != nil {
		return nil, err
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(model, []string{input}, []string{output}, opts)
	if err != nil {
		return nil, err
	}
	return &ortSession{session: session}, nil
}

type ortSession struct {
	session *ort.DynamicAdvancedSession
}

func (s *ortSession) Run(input []float32) ([]float32, error) {
	in, err := ort.NewTensor(ort.NewShape(1, Channels, InputSize, InputSize), input)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer in.Destroy()

	// nil outputs are allocated by onnxruntime
	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{in}, outputs); err != nil {
		return nil, err
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type %T", outputs[0])
	}

	data := out.GetData()
	vec := make([]float32, len(data))
	copy(vec, data)
	return vec, nil
}

func (s *ortSession) Destroy() error {
	return s.session.Destroy()
}

func toTensorInfo(infos []ort.InputOutputInfo) []tensorInfo {
	out := make([]tensorInfo, len(infos))
	for i, info := range infos {
		out[i] = tensorInfo{Name: info.Name, Shape: []int64(info.Dimensions)}
	}
	return out
}
