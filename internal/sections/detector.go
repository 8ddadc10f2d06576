// Package sections reports which common résumé sections a document mentions.
package sections

import (
	"strings"

	"github.com/dlclark/regexp2"
)

// Section is a fixed résumé section key.
type Section string

const (
	Experience     Section = "experience"
	Education      Section = "education"
	Skills         Section = "skills"
	Languages      Section = "languages"
	Certifications Section = "certifications"
	Projects       Section = "projects"
	Interests      Section = "interests"
)

// All lists every section key in report order.
var All = []Section{Experience, Education, Skills, Languages, Certifications, Projects, Interests}

// PresenceMap records, per section, whether any of its keywords occurs.
type PresenceMap map[Section]bool

// Keywords per section, French and English. Matching ignores case.
var keywords = map[Section][]string{
	Experience:     {`exp[ée]riences?`, `parcours[ \t]+professionnel`, `emplois?`, `employment`, `work[ \t]+history`},
	Education:      {`formations?`, `[ée]ducation`, `[ée]tudes`, `dipl[ôo]mes?`, `cursus`, `scolarit[ée]`, `academic`},
	Skills:         {`comp[ée]tences`, `skills`, `savoir-faire`, `aptitudes`, `expertise`},
	Languages:      {`langues`, `languages`},
	Certifications: {`certifications?`, `certificats?`, `habilitations?`},
	Projects:       {`projets?`, `projects?`, `r[ée]alisations`, `portfolio`},
	Interests:      {`centres?[ \t]+d['’]int[ée]r[êe]ts?`, `int[ée]r[êe]ts`, `loisirs`, `hobbies`, `interests`},
}

var patterns = compile()

func compile() map[Section]*regexp2.Regexp {
	out := make(map[Section]*regexp2.Regexp, len(keywords))
	for section, words := range keywords {
		out[section] = regexp2.MustCompile(`\b(?:`+strings.Join(words, "|")+`)\b`, regexp2.IgnoreCase)
	}
	return out
}

// Detect tests every section against text. A missing section is false, never an error.
func Detect(text string) PresenceMap {
	presence := make(PresenceMap, len(All))
	for _, section := range All {
		found, err := patterns[section].MatchString(text)
		// patterns carry no match timeout, so err is always nil
		presence[section] = err == nil && found
	}
	return presence
}

// Found returns the present sections in report order.
func (p PresenceMap) Found() []Section {
	var found []Section
	for _, section := range All {
		if p[section] {
			found = append(found, section)
		}
	}
	return found
}
