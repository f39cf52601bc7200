package router

import (
	"fmt"

	"github.com/AaronLay10/Haeccstable/internal/model"
)

func arity(method string, args []model.Value, n int, names string) error {
	if len(args) == n {
		return nil
	}
	if names == "" {
		return fmt.Errorf("%w: %s takes no arguments, got %d", ErrBadRequest, method, len(args))
	}
	return fmt.Errorf("%w: %s expects %d arguments (%s), got %d", ErrBadRequest, method, n, names, len(args))
}

func stringArg(method string, args []model.Value, i int) (string, error) {
	a := args[i]
	if a.Kind != model.KindString || a.Str == "" {
		return "", fmt.Errorf("%w: %s argument %d must be a name, got %s", ErrBadRequest, method, i+1, a.Kind)
	}
	return a.Str, nil
}

func numberArg(method string, args []model.Value, i int) (float64, error) {
	a := args[i]
	if a.Kind != model.KindNumber {
		return 0, fmt.Errorf("%w: %s argument %d must be a number, got %s", ErrBadRequest, method, i+1, a.Kind)
	}
	return a.Num, nil
}

func intArg(method string, args []model.Value, i int) (int, error) {
	n, ok := args[i].AsInt()
	if !ok {
		return 0, fmt.Errorf("%w: %s argument %d must be an integer, got %s", ErrBadRequest, method, i+1, args[i])
	}
	return n, nil
}

func layerAndPriority(method string, args []model.Value) (string, int, error) {
	if err := arity(method, args, 2, "layer, priority"); err != nil {
		return "", 0, err
	}
	layer, err := stringArg(method, args, 0)
	if err != nil {
		return "", 0, err
	}
	priority, err := intArg(method, args, 1)
	if err != nil {
		return "", 0, err
	}
	return layer, priority, nil
}

// vec2Args accepts either one [x, y] tuple or two numbers.
func vec2Args(method string, args []model.Value) (model.Vec2, error) {
	switch len(args) {
	case 1:
		if v, ok := args[0].AsVec2(); ok {
			return v, nil
		}
	case 2:
		if args[0].Kind == model.KindNumber && args[1].Kind == model.KindNumber {
			return model.Vec2{args[0].Num, args[1].Num}, nil
		}
	}
	return model.Vec2{}, fmt.Errorf("%w: %s expects [x, y]", ErrBadRequest, method)
}
