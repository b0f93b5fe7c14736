package models

// SkillSuggestion is the structured-output schema used when drafting a skill.
type SkillSuggestion struct {
	NameEn       string `json:"NameEn" jsonschema_description:"Canonical English name of the skill or trade, Title Case, without seniority words"`
	NameAr       string `json:"NameAr" jsonschema_description:"Common Arabic name of the skill as used in Gulf job postings"`
	Slug         string `json:"Slug" jsonschema_description:"Lowercase ASCII slug of the English name using hyphens"`
	BillingClass string `json:"BillingClass" jsonschema:"enum=S,enum=A,enum=B,enum=C,enum=D" jsonschema_description:"Pricing tier. S for scarce senior specialists (physicians, pilots), A for licensed professionals (engineers, nurses, accountants), B for skilled technicians, C for semi-skilled trades and drivers, D for general labour and domestic work"`
}

// SkillMatch is one ranked skill search hit.
type SkillMatch struct {
	Skill
	Similarity float64 `json:"similarity"`
}

// SkillSeed is one row of a skills import.
type SkillSeed struct {
	Slug   string `yaml:"slug" json:"slug"`
	NameEn string `yaml:"name_en" json:"nameEn"`
	NameAr string `yaml:"name_ar" json:"nameAr"`
	Class  string `yaml:"class" json:"class"`
}
