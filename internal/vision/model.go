package vision

import (
	"os"

	"github.com/tphakala/go-tflite"
	"github.com/tphakala/go-tflite/delegates/xnnpack"

	"github.com/shelfvision/shelfvision-go/internal/errors"
)

// loadedModel bundles a tflite model with its interpreter so both can be
// released together.
type loadedModel struct {
	model       *tflite.Model
	interpreter *tflite.Interpreter
}

// loadModel reads a tflite model from disk and builds an interpreter with
// allocated tensors. The xnnpack delegate leaves one thread for the rest
// of the process.
func loadModel(modelPath string, threads int, useXNNPACK bool) (*loadedModel, error) {
	data, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, errors.New(err).
			Component("vision").
			Category(errors.CategoryModelLoad).
			ModelContext(modelPath, "tflite").
			Build()
	}

	model := tflite.NewModel(data)
	if model == nil {
		return nil, errors.Newf("cannot parse tflite model").
			Component("vision").
			Category(errors.CategoryModelLoad).
			ModelContext(modelPath, "tflite").
			Build()
	}

	if threads < 1 {
		threads = 1
	}
	options := tflite.NewInterpreterOptions()
	options.SetNumThread(threads)
	if useXNNPACK {
		delegate := xnnpack.New(xnnpack.DelegateOptions{NumThreads: int32(max(1, threads-1))})
		if delegate != nil {
			options.AddDelegate(delegate)
		}
	}

	interpreter := tflite.NewInterpreter(model, options)
	if interpreter == nil {
		model.Delete()
		return nil, errors.Newf("cannot create tflite interpreter").
			Component("vision").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, "tflite").
			Build()
	}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		interpreter.Delete()
		model.Delete()
		return nil, errors.Newf("tensor allocation failed").
			Component("vision").
			Category(errors.CategoryModelInit).
			ModelContext(modelPath, "tflite").
			Build()
	}

	return &loadedModel{model: model, interpreter: interpreter}, nil
}

// close releases the interpreter and model.
func (lm *loadedModel) close() {
	if lm == nil {
		return
	}
	if lm.interpreter != nil {
		lm.interpreter.Delete()
	}
	if lm.model != nil {
		lm.model.Delete()
	}
}

// inputSize reads the square input edge length from the first input
// tensor, assuming NHWC layout.
func (lm *loadedModel) inputSize() int {
	t := lm.interpreter.GetInputTensor(0)
	if t == nil || t.NumDims() < 3 {
		return 0
	}
	return t.Dim(1)
}
