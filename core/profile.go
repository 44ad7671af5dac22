package calls

import (
	"fmt"
	"strings"
)

// AssistantProfile is the operator-supplied configuration of the
// spoken assistant. It is turned into the natural-language system
// instruction sent once in the live session handshake.
type AssistantProfile struct {
	BusinessName  string
	AssistantRole string
	// Context is free text describing the business: opening hours,
	// services, anything the assistant should be able to answer.
	Context string
	// Language is the language the assistant must speak, e.g.
	// "English" or "Croatian". Empty leaves the choice to the model.
	Language string
	// Voice selects the synthesized output voice by service enum name.
	Voice string
}

func (p AssistantProfile) SystemInstruction() string {
	business := strings.TrimSpace(p.BusinessName)
	if business == "" {
		business = "the business"
	}
	role := strings.TrimSpace(p.AssistantRole)
	if role == "" {
		role = "assistant"
	}

	var instruction strings.Builder
	fmt.Fprintf(&instruction,
		"You are the %s for %s, speaking with a caller over the phone. Keep answers short and natural for spoken conversation.",
		role, business)

	if context := strings.TrimSpace(p.Context); context != "" {
		fmt.Fprintf(&instruction, " Business context: %s", context)
		if !strings.HasSuffix(context, ".") {
			instruction.WriteString(".")
		}
	}
	if language := strings.TrimSpace(p.Language); language != "" {
		fmt.Fprintf(&instruction, " Always respond in %s.", language)
	}

	return instruction.String()
}
