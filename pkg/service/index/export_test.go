package index

var (
	SplitText           = splitText
	LeadingTokens       = leadingTokens
	FallbackDescription = fallbackDescription
)
