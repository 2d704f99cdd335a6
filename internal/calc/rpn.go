// Package calc holds the chat calculators: an integer RPN evaluator and
// a big-integer factorial.
package calc

import (
	"errors"
	"fmt"
	"strconv"
)

var (
	ErrDivideByZero = errors.New("division by zero")
	ErrNoInput      = errors.New("no input")
)

// EvalRPN evaluates an integer reverse-Polish expression.
//
// Operators: + - * / % ** (power) and the bitwise & | ^.
// Division truncates toward zero, like Go's integer division.
func EvalRPN(tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, ErrNoInput
	}
	stack := make([]int64, 0, len(tokens))

	pop2 := func(op string) (a, b int64, err error) {
		if len(stack) < 2 {
			return 0, 0, fmt.Errorf("operator %q needs two operands", op)
		}
		b = stack[len(stack)-1]
		a = stack[len(stack)-2]
		stack = stack[:len(stack)-2]
		return a, b, nil
	}

	for _, tok := range tokens {
		if n, err := strconv.ParseInt(tok, 10, 64); err == nil {
			stack = append(stack, n)
			continue
		}
		a, b, err := pop2(tok)
		if err != nil {
			return 0, err
		}
		var r int64
		switch tok {
		case "+":
			r = a + b
		case "-":
			r = a - b
		case "*":
			r = a * b
		case "/":
			if b == 0 {
				return 0, ErrDivideByZero
			}
			r = a / b
		case "%":
			if b == 0 {
				return 0, ErrDivideByZero
			}
			r = a % b
		case "**":
			r, err = powInt(a, b)
			if err != nil {
				return 0, err
			}
		case "&":
			r = a & b
		case "|":
			r = a | b
		case "^":
			r = a ^ b
		default:
			return 0, fmt.Errorf("unknown token %q", tok)
		}
		stack = append(stack, r)
	}

	if len(stack) != 1 {
		return 0, fmt.Errorf("malformed expression: %d values left on the stack", len(stack))
	}
	return stack[0], nil
}

// powInt is binary exponentiation. Like the other operators it wraps on
// overflow rather than erroring.
func powInt(base, exp int64) (int64, error) {
	if exp < 0 {
		return 0, fmt.Errorf("negative exponent %d", exp)
	}
	var r int64 = 1
	for exp > 0 {
		if exp&1 == 1 {
			r *= base
		}
		base *= base
		exp >>= 1
	}
	return r, nil
}
