package agent

import "fmt"

// Payload 是 agent 输入输出的封闭变体，只有本包内的类型可以实现。
type Payload interface {
	payload()
}

func (PlannerInput) payload()     {}
func (PlannerOutput) payload()    {}
func (ExplorerInput) payload()    {}
func (ExplorerOutput) payload()   {}
func (ResearcherInput) payload()  {}
func (ResearcherOutput) payload() {}
func (DeciderInput) payload()     {}
func (DeciderOutput) payload()    {}
func (CheckerInput) payload()     {}
func (CheckerOutput) payload()    {}

// Direction 区分输入与输出校验。
type Direction string

const (
	DirectionInput  Direction = "input"
	DirectionOutput Direction = "output"
)

// checkVariant 确认 payload 是该 kind 在该方向上的唯一合法类型。
func checkVariant(kind Kind, dir Direction, p Payload) error {
	ok := false
	switch kind {
	case KindPlanner:
		if dir == DirectionInput {
			_, ok = p.(PlannerInput)
		} else {
			_, ok = p.(PlannerOutput)
		}
	case KindExplorer:
		if dir == DirectionInput {
			_, ok = p.(ExplorerInput)
		} else {
			_, ok = p.(ExplorerOutput)
		}
	case KindResearcher:
		if dir == DirectionInput {
			_, ok = p.(ResearcherInput)
		} else {
			_, ok = p.(ResearcherOutput)
		}
	case KindDecider:
		if dir == DirectionInput {
			_, ok = p.(DeciderInput)
		} else {
			_, ok = p.(DeciderOutput)
		}
	case KindChecker:
		if dir == DirectionInput {
			_, ok = p.(CheckerInput)
		} else {
			_, ok = p.(CheckerOutput)
		}
	default:
		return &InvalidPayloadError{Kind: kind, Direction: dir, Field: "kind", Reason: "unknown agent kind"}
	}
	if !ok {
		return &InvalidPayloadError{
			Kind:      kind,
			Direction: dir,
			Field:     "$",
			Reason:    fmt.Sprintf("unexpected payload type %T", p),
		}
	}
	return nil
}
