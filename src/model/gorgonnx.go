package model

import (
	"fmt"
	"os"
	"sort"

	"github.com/owulveryck/onnx-go"
	"github.com/owulveryck/onnx-go/backend/x/gorgonnx"
	"gonum.org/v1/gonum/graph"
	"gorgonia.org/tensor"
)

// gorgonnxOperators is the operator registry of the pinned gorgonnx release. The graph is
// only compiled on the first forward pass, so it is checked against this set while loading.
var gorgonnxOperators = map[string]bool{
	"Abs": true, "Add": true, "BatchNormalization": true, "Ceil": true, "Concat": true,
	"Constant": true, "Conv": true, "Cos": true, "Cube": true, "Div": true, "Dropout": true,
	"Exp": true, "Expm1": true, "Flatten": true, "Floor": true, "Gemm": true,
	"GlobalAveragePool": true, "Identity": true, "ImageScaler": true, "Inverse": true,
	"LeakyRelu": true, "Log": true, "Log1p": true, "Log2": true, "MatMul": true, "Max": true,
	"MaxPool": true, "Min": true, "Mul": true, "Neg": true, "Relu": true, "Reshape": true,
	"Sigmoid": true, "Sign": true, "Sin": true, "Softmax": true, "Softplus": true,
	"Sqrt": true, "Square": true, "Squeeze": true, "Sub": true, "Tanh": true,
	"Transpose": true, "Unsqueeze": true,
}

// operatorRecorder notes every operator the decoder applies to the graph.
type operatorRecorder struct {
	*gorgonnx.Graph
	operators map[string]bool
}

func (r *operatorRecorder) ApplyOperation(o onnx.Operation, ns ...graph.Node) error {
	r.operators[o.Name] = true

	return r.Graph.ApplyOperation(o, ns...)
}

func unsupportedOperators(used map[string]bool) []string {
	var missing []string
	for name := range used {
		if !gorgonnxOperators[name] {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)

	return missing
}

type gorgonnxBackend struct {
	graph *gorgonnx.Graph
	model *onnx.Model
}

func openGorgonnx(path string, _ Options) (Backend, error) {
	b, err := os.ReadFile(path)
	if nil != err {
		return nil, err
	}

	return decodeGorgonnx(b)
}

func decodeGorgonnx(b []byte) (*gorgonnxBackend, error) {
	recorder := &operatorRecorder{Graph: gorgonnx.NewGraph(), operators: map[string]bool{}}
	m := onnx.NewModel(recorder)

	if err := m.UnmarshalBinary(b); nil != err {
		return nil, fmt.Errorf("decode onnx graph: %w", err)
	}

	if missing := unsupportedOperators(recorder.operators); 0 < len(missing) {
		return nil, fmt.Errorf("%w: gorgonnx cannot run operators %v, use the %s backend",
			ErrUnsupportedModel, missing, BackendOnnxRuntime)
	}

	return &gorgonnxBackend{graph: recorder.Graph, model: m}, nil
}

func (g *gorgonnxBackend) Run(input *tensor.Dense) (tensor.Tensor, error) {
	if err := g.model.SetInput(0, input); nil != err {
		return nil, fmt.Errorf("set input: %w", err)
	}

	if err := g.graph.Run(); nil != err {
		return nil, err
	}

	outputs, err := g.model.GetOutputTensors()
	if nil != err {
		return nil, fmt.Errorf("read outputs: %w", err)
	}

	if 0 == len(outputs) {
		return nil, fmt.Errorf("graph produced no output")
	}

	return outputs[0], nil
}

func (g *gorgonnxBackend) Close() error {
	return nil
}
