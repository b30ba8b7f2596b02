package triage

import (
	"regexp"
	"strings"
)

// PatternsVersion identifies the detector table below. Bump it whenever a
// pattern changes so stored triage decisions can be traced to the rules that
// produced them.
const PatternsVersion = "v1"

// Red flags force an escalation regardless of what the extractor returns.
var redFlagPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)trouble\s*breathing`),
	regexp.MustCompile(`(?i)breathing\s*trouble`),
	regexp.MustCompile(`(?i)can'?t\s*breathe`),
	regexp.MustCompile(`(?i)uncontrollable?\s*bleed`),
	regexp.MustCompile(`(?i)swelling.{0,20}(eye|throat|neck|airway)`),
	regexp.MustCompile(`(?i)severe\s*trauma`),
	regexp.MustCompile(`(?i)jaw\s*(fracture|broken)`),
	regexp.MustCompile(`(?i)(anaphyla|allergic\s*reaction)`),
	regexp.MustCompile(`(?i)chest\s*pain`),
	regexp.MustCompile(`(?i)loss\s*of\s*consciousness`),
	regexp.MustCompile(`(?i)difficulty\s*swallowing`),
	regexp.MustCompile(`(?i)(knocked\s*out|avulsed).{0,12}(tooth|teeth)`),
	regexp.MustCompile(`(?i)(tooth|teeth).{0,12}(knocked\s*out|avulsed)`),
	regexp.MustCompile(`(?i)heavy\s*bleeding.{0,20}(tooth|gum|mouth)`),
	regexp.MustCompile(`(?i)pain.{0,10}(9|10)\s*(/|out\s*of)\s*10`),
}

// negationPrefixPattern matches a denial immediately preceding a phrase, as
// in "no trouble breathing" or "don't have difficulty swallowing". RE2 has
// no lookbehind, so HasRedFlag inspects the window before each match by hand.
var negationPrefixPattern = regexp.MustCompile(`(?i)\b(?:no|without|never|not(?:\s+(?:have|having|experiencing))?|don'?t\s+have|doesn'?t\s+have|denies|deny(?:ing)?)\s+(?:any\s+)?$`)

const negationWindow = 32

// matchesUnnegated reports whether pattern matches text at a position that
// is not preceded by a denial, so "no heavy bleeding" does not count as a
// bleeding report.
func matchesUnnegated(pattern *regexp.Regexp, text string) bool {
	for _, loc := range pattern.FindAllStringIndex(text, -1) {
		start := loc[0] - negationWindow
		if start < 0 {
			start = 0
		}
		if !negationPrefixPattern.MatchString(text[start:loc[0]]) {
			return true
		}
	}
	return false
}

// HasRedFlag reports whether text contains an emergency phrase that is not
// locally negated. "I can't breathe" matches; "no trouble breathing" does not.
func HasRedFlag(text string) bool {
	for _, pattern := range redFlagPatterns {
		if matchesUnnegated(pattern, text) {
			return true
		}
	}
	return false
}

var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*(hi|hey|hello|good\s*(morning|afternoon|evening)|howdy)\s*[.!?]*\s*$`),
	regexp.MustCompile(`(?i)^\s*what'?s\s*up\s*[.!?]*\s*$`),
	regexp.MustCompile(`(?i)^\s*(thanks|thank\s*you)\s*[.!?]*\s*$`),
	regexp.MustCompile(`(?i)^\s*(bye|goodbye|see\s*you)\s*[.!?]*\s*$`),
	regexp.MustCompile(`(?i)^\s*(ok|okay|sure|got\s*it|sounds\s*good)\s*[.!?]*\s*$`),
	regexp.MustCompile(`(?i)^\s*(yes|no|yeah|nope|yep)\s*[.!?]*\s*$`),
}

var smallTalkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*who\s*are\s*you`),
	regexp.MustCompile(`(?i)^\s*tell\s*me\s*about\s*(yourself|the\s*clinic|this)`),
	regexp.MustCompile(`(?i)^\s*can\s*you\s*help`),
}

const smallTalkWordLimit = 10

// ClassifyChatter distinguishes greetings and small talk from clinical
// messages. Only short messages qualify so "hi, my tooth is killing me"
// still reaches the extractor.
func ClassifyChatter(text string) (Action, bool) {
	if len(strings.Fields(text)) >= smallTalkWordLimit {
		return "", false
	}
	for _, pattern := range greetingPatterns {
		if pattern.MatchString(text) {
			return ActionGreeting, true
		}
	}
	for _, pattern := range smallTalkPatterns {
		if pattern.MatchString(text) {
			return ActionSmallTalk, true
		}
	}
	return "", false
}

// Forbidden patterns catch diagnosis or prescription language in extractor
// reasoning. Any hit downgrades the turn to a safe clarification.
var forbiddenPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)you\s*have\s*(pulpitis|periodontitis|abscess|gingivitis|caries|cavity|infection)`),
	regexp.MustCompile(`(?i)diagnosis\s*is`),
	regexp.MustCompile(`(?i)diagnosed\s*with`),
	regexp.MustCompile(`(?i)you\s*(need|require|should\s*get)\s*(a\s*)?(root\s*canal|extraction|filling|crown|implant|bridge)`),
	regexp.MustCompile(`(?i)take\s*(amoxicillin|ibuprofen|antibiotics|painkillers|acetaminophen|tylenol|advil)`),
	regexp.MustCompile(`(?i)prescribe`),
	regexp.MustCompile(`(?i)prescription`),
	regexp.MustCompile(`(?i)i\s*recommend\s*(taking|using)`),
}

// HasForbiddenContent reports whether text contains diagnosis or treatment
// advice the intake layer must never emit.
func HasForbiddenContent(text string) bool {
	for _, pattern := range forbiddenPatterns {
		if pattern.MatchString(text) {
			return true
		}
	}
	return false
}

// Presence detectors for clinical elements mentioned in free text.
var (
	durationPattern = regexp.MustCompile(`(?i)(\d+\s*(day|week|month|year|hour|hr|min|minute)s?)|(since\s+(monday|tuesday|wednesday|thursday|friday|saturday|sunday|yesterday|last\s*(week|month|night)))|(last\s*(night|week|month|few\s*days))|(for\s+a\s*(while|long\s*time|few\s*days))|(started\s+(yesterday|today|recently|suddenly))|(on\s*and\s*off)`)

	severityPattern = regexp.MustCompile(`(?i)(severe|excruciating|unbearable|terrible|awful|horrible|intense|extreme)|(killing\s*me|can'?t\s*(sleep|eat|function|stand))|(\b[7-9]\b\s*(/|out\s*of)\s*10)|(10\s*(/|out\s*of)\s*10)|(very\s*(bad|painful|sore))|(worst\s*pain)`)

	locationPattern = regexp.MustCompile(`(?i)(upper|lower|front|back|left|right|top|bottom)|(molar|premolar|incisor|canine|wisdom)|((tooth|teeth)\s*#?\d+)|([UL][LR]\s*Q?[1-4])|(quadrant\s*[1-4])`)

	stimulusPattern = regexp.MustCompile(`(?i)(hot|cold|thermal|ice|iced|warm)|(bit(e|ing)|chew(ing)?|pressure|press(ing)?)`)

	chronobiologyPattern = regexp.MustCompile(`(?i)(at\s*night|worse\s*at\s*night|wakes?\s*me(\s*up)?|while\s*(sleeping|asleep)|night\s*pain)`)

	systemicRiskPattern = regexp.MustCompile(`(?i)(fever|feverish|chills|diabet|immunocompromised|blood\s*thinner|anticoagulant|pregnan|heart\s*condition)`)

	swellingLocationPattern = regexp.MustCompile(`(?i)(cheek|jaw|face|facial|neck|gum|under\s*(the\s*)?tongue|floor\s*of\s*(the\s*)?mouth|lymph)`)

	hemorrhagePattern = regexp.MustCompile(`(?i)(bleeding\s*(stopp?ed|controlled|slowed))|(still\s*bleeding)|(won'?t\s*stop\s*bleeding)|(heavy|continuous|uncontroll)`)
)

// Answer value matchers used when folding structured answers into an issue.
var (
	thermalStimulusPattern  = regexp.MustCompile(`hot|cold|thermal`)
	bitingStimulusPattern   = regexp.MustCompile(`chew|biting|bite|pressure`)
	visibleSwellingPattern  = regexp.MustCompile(`face|cheek|jaw|neck|floor`)
	airwayCompromisePattern = regexp.MustCompile(`difficulty\s*(breathing|swallowing)|unable|can'?t\s*(breathe|swallow)|\byes\b`)
	activeBleedingPattern   = regexp.MustCompile(`uncontrolled|heavy|continuous|fills?\s*(my\s*)?mouth|won'?t\s*stop`)
	integerPattern          = regexp.MustCompile(`\d+`)
)

// Keyword sets for symptom-domain checks against an issue's free text.
var (
	painKeywords     = []string{"pain", "hurt", "ache", "throb", "sore", "sensitive"}
	swellingKeywords = []string{"swelling", "swollen", "swells", "puffed", "inflamed"}
	bleedingKeywords = []string{"bleed", "bleeding", "blood", "hemorrhage"}
	airwayKeywords   = []string{"breath", "swallow", "airway", "throat"}
)

func containsAny(text string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
