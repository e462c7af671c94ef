package agent

// Scripted conversation material. The opener is deliberately fixed text so
// every participant sees a deterministic start to the discussion.

// InstructionText is the topic prompt shown before any agent speaks.
const InstructionText = "Do you think the U.S. should continue supporting Ukraine? Why or why not?"

// InitialExchangeFallback substitutes for Agent B's modeled reply when the
// completion call fails during the initial exchange.
const InitialExchangeFallback = "Yeah, it's definitely something worth discussing."

var openers = map[string]string{
	"support": "We absolutely need to keep supporting Ukraine against Russia. Reality is that Putin won't stop at Ukraine. He is already threatening poland and the baltics, and we'll be fighting world war 3.",
	"oppose":  "If I have to be honest...... I think it's time we stop supporting Ukraine. We have done a lot to help them at this point. But people who want us to keep throwing billions over there are ignoring very real issues like inflation and the extremely high cost of living! We can't even fund Medicaid properly.",
}

// OpenerFor returns the scripted opening statement matching a stance.
func OpenerFor(stance string) string {
	return openers[stance]
}
