package model

import (
	"errors"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"gorgonia.org/tensor"
)

var (
	ortOnce sync.Once
	ortErr  error
)

// The onnxruntime environment is process wide and is initialized at most once.
func initOnnxRuntime(lib string) error {
	ortOnce.Do(func() {
		if "" != lib {
			ort.SetSharedLibraryPath(lib)
		}

		if !ort.IsInitialized() {
			ortErr = ort.InitializeEnvironment()
		}
	})

	return ortErr
}

type ortBinding struct {
	session *ort.AdvancedSession
	input   *ort.Tensor[float32]
	output  *ort.Tensor[float32]
	shape   tensor.Shape
}

func (b *ortBinding) destroy() error {
	return errors.Join(b.session.Destroy(), b.input.Destroy(), b.output.Destroy())
}

// onnxRuntimeBackend keeps one bound session per input shape, the aligned resize policy can
// feed more than one.
type onnxRuntimeBackend struct {
	path     string
	input    string
	output   string
	dims     ort.Shape
	bindings map[string]*ortBinding
}

func openOnnxRuntime(path string, opts Options) (Backend, error) {
	if err := initOnnxRuntime(opts.OnnxRuntimeLib); nil != err {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(path)
	if nil != err {
		return nil, fmt.Errorf("inspect model: %w", err)
	}

	if 0 == len(inputs) || 0 == len(outputs) {
		return nil, fmt.Errorf("model declares %d inputs and %d outputs", len(inputs), len(outputs))
	}

	return &onnxRuntimeBackend{
		path:     path,
		input:    inputs[0].Name,
		output:   outputs[0].Name,
		dims:     outputs[0].Dimensions,
		bindings: map[string]*ortBinding{},
	}, nil
}

// outputShape resolves the declared output dimensions of the model for one input shape.
// Symbolic dimensions take the input's size on the same axis.
func outputShape(declared ort.Shape, input tensor.Shape) ([]int64, error) {
	if 0 == len(declared) {
		declared = make(ort.Shape, len(input))
		for i := range declared {
			declared[i] = -1
		}
	}

	dims := make([]int64, len(declared))
	for i, d := range declared {
		switch {
		case 0 < d:
			dims[i] = d
		case i < len(input):
			dims[i] = int64(input[i])
		default:
			return nil, fmt.Errorf("output dimension %d of %v cannot be derived from input %v", i, declared, input)
		}
	}

	return dims, nil
}

func (o *onnxRuntimeBackend) bind(shape tensor.Shape) (*ortBinding, error) {
	key := fmt.Sprint([]int(shape))
	if binding, ok := o.bindings[key]; ok {
		return binding, nil
	}

	dims := make([]int64, len(shape))
	for i, d := range shape {
		dims[i] = int64(d)
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(dims...))
	if nil != err {
		return nil, err
	}

	outputDims, err := outputShape(o.dims, shape)
	if nil != err {
		input.Destroy()
		return nil, err
	}

	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outputDims...))
	if nil != err {
		input.Destroy()
		return nil, err
	}

	session, err := ort.NewAdvancedSession(o.path,
		[]string{o.input}, []string{o.output},
		[]ort.Value{input}, []ort.Value{output}, nil)
	if nil != err {
		input.Destroy()
		output.Destroy()
		return nil, err
	}

	outShape := make(tensor.Shape, len(outputDims))
	for i, d := range outputDims {
		outShape[i] = int(d)
	}

	binding := &ortBinding{session: session, input: input, output: output, shape: outShape}
	o.bindings[key] = binding

	return binding, nil
}

func (o *onnxRuntimeBackend) Run(input *tensor.Dense) (tensor.Tensor, error) {
	data, ok := input.Data().([]float32)
	if !ok {
		return nil, fmt.Errorf("onnxruntime expects float32 input, got %T", input.Data())
	}

	binding, err := o.bind(input.Shape())
	if nil != err {
		return nil, fmt.Errorf("bind shape %v: %w", input.Shape(), err)
	}

	copy(binding.input.GetData(), data)
	if err := binding.session.Run(); nil != err {
		return nil, fmt.Errorf("run %v -> %v: %w", input.Shape(), binding.shape, err)
	}

	result := make([]float32, len(binding.output.GetData()))
	copy(result, binding.output.GetData())

	return tensor.New(tensor.WithShape(binding.shape.Clone()...), tensor.WithBacking(result)), nil
}

func (o *onnxRuntimeBackend) Close() error {
	var errs []error
	for key, binding := range o.bindings {
		errs = append(errs, binding.destroy())
		delete(o.bindings, key)
	}

	return errors.Join(errs...)
}
