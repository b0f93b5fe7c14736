package models

import (
	"fmt"
	"strings"
)

type BillingClass string

const (
	BillingClassS BillingClass = "S"
	BillingClassA BillingClass = "A"
	BillingClassB BillingClass = "B"
	BillingClassC BillingClass = "C"
	BillingClassD BillingClass = "D"
)

// DefaultBillingClass is charged for candidates without a primary skill.
const DefaultBillingClass = BillingClassD

var BillingClasses = []BillingClass{BillingClassS, BillingClassA, BillingClassB, BillingClassC, BillingClassD}

func ParseBillingClass(value string) (BillingClass, error) {
	class := BillingClass(strings.ToUpper(strings.TrimSpace(value)))
	for _, known := range BillingClasses {
		if class == known {
			return class, nil
		}
	}
	return "", fmt.Errorf("unknown billing class %q", value)
}

// ClassPrice is the credit cost of the two billable employer actions.
type ClassPrice struct {
	Interview int `yaml:"interview" json:"interview"`
	Unlock    int `yaml:"unlock" json:"unlock"`
}

type Pricing map[BillingClass]ClassPrice

func DefaultPricing() Pricing {
	return Pricing{
		BillingClassS: {Interview: 5, Unlock: 3},
		BillingClassA: {Interview: 4, Unlock: 2},
		BillingClassB: {Interview: 3, Unlock: 2},
		BillingClassC: {Interview: 2, Unlock: 1},
		BillingClassD: {Interview: 1, Unlock: 1},
	}
}

func (p Pricing) InterviewCost(class BillingClass) int {
	return p.lookup(class).Interview
}

func (p Pricing) UnlockCost(class BillingClass) int {
	return p.lookup(class).Unlock
}

func (p Pricing) lookup(class BillingClass) ClassPrice {
	if price, ok := p[class]; ok {
		return price
	}
	return p[DefaultBillingClass]
}

// Validate requires a positive price for every class.
func (p Pricing) Validate() error {
	for _, class := range BillingClasses {
		price, ok := p[class]
		if !ok {
			return fmt.Errorf("pricing for class %s is missing", class)
		}
		if price.Interview <= 0 || price.Unlock <= 0 {
			return fmt.Errorf("pricing for class %s must be positive", class)
		}
	}
	return nil
}
