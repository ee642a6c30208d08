package reconcile

import (
	"strings"

	"github.com/joseph-ayodele/care-records/internal/matching"
)

// criticalClass is a group of high-risk medications. A new, unreconciled mention of
// any of these is raised at HIGH priority.
type criticalClass struct {
	Class string
	Names []string
}

var criticalMedications = []criticalClass{
	{Class: "insulin", Names: []string{"insulin", "glargine", "lantus", "basaglar", "toujeo", "humalog", "lispro", "novolog", "aspart", "levemir", "detemir", "tresiba", "degludec", "humulin", "novolin"}},
	{Class: "anticoagulant", Names: []string{"warfarin", "coumadin", "jantoven", "heparin", "enoxaparin", "lovenox", "apixaban", "eliquis", "rivaroxaban", "xarelto", "dabigatran", "pradaxa", "edoxaban", "savaysa"}},
	{Class: "antiplatelet", Names: []string{"clopidogrel", "plavix", "ticagrelor", "brilinta", "prasugrel"}},
	{Class: "cardiac glycoside", Names: []string{"digoxin", "lanoxin", "digitoxin"}},
	{Class: "antiarrhythmic", Names: []string{"amiodarone", "sotalol", "dofetilide", "flecainide"}},
	{Class: "opioid", Names: []string{"morphine", "oxycodone", "hydrocodone", "fentanyl", "hydromorphone", "methadone", "tramadol"}},
	{Class: "narrow therapeutic index", Names: []string{"lithium", "phenytoin", "carbamazepine", "valproate", "theophylline", "methotrexate", "tacrolimus", "cyclosporine"}},
	{Class: "sulfonylurea", Names: []string{"glipizide", "glyburide", "glimepiride"}},
}

// CriticalClass reports the high-risk class a medication name belongs to, if any.
func CriticalClass(name string) (string, bool) {
	n := " " + matching.NormalizeName(name) + " "
	if strings.TrimSpace(n) == "" {
		return "", false
	}
	for _, c := range criticalMedications {
		for _, entry := range c.Names {
			if strings.Contains(n, " "+entry+" ") {
				return c.Class, true
			}
		}
	}
	return "", false
}
