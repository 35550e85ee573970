package model

// ToolDescriptor is the name and capability summary of a callable tool
type ToolDescriptor struct {
	Name        string
	Description string
}

// Well-known tool names exposed to the reasoning agent
const (
	ToolNameComparativeAnalysis = "comparative_analysis"
	ToolNameTaxDataCSV          = "tax_data_csv"
)

// EmptyResponse is returned by the router when a question yields no sub-questions
const EmptyResponse = "Empty Response"

// SubQuestion is one narrower question tagged with the tool that should answer it
type SubQuestion struct {
	ToolName string `json:"tool_name"`
	Question string `json:"sub_question"`
}

// SubAnswer is the outcome of dispatching one SubQuestion
type SubAnswer struct {
	SubQuestion
	Answer string
	Err    error
}

// Succeeded reports whether the sub-question produced a usable answer
func (x SubAnswer) Succeeded() bool {
	return x.Err == nil && x.Answer != ""
}

// RouterAnswer is the synthesized response of the sub-question router
type RouterAnswer struct {
	Text       string
	SubAnswers []SubAnswer
	Empty      bool
}
