package tools

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/scoring"
	"github.com/capitalize-ai/lead-qualifier/internal/store"
	"github.com/capitalize-ai/lead-qualifier/pkg/metrics"
)

type qualificationArgs struct {
	BusinessType   string     `json:"business_type"`
	Timeline       string     `json:"timeline"`
	PainPoints     stringList `json:"pain_points"`
	BusinessScale  string     `json:"business_scale"`
	CoffeeStyle    string     `json:"coffee_style"`
	EquipmentNeeds string     `json:"equipment_needs"`
	Volume         string     `json:"volume"`
	SupportNeeds   stringList `json:"support_needs"`
	ContactName    string     `json:"contact_name"`
	ContactPhone   string     `json:"contact_phone"`
	ContactEmail   string     `json:"contact_email"`
	ContactRole    string     `json:"contact_role"`
}

// merge copies every provided field onto l. Scalars replace, sets grow.
func (a qualificationArgs) merge(l *model.Lead) {
	if bt := model.BusinessType(a.BusinessType); bt != "" && bt != model.BusinessUnknown {
		l.BusinessType = bt
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&l.Timeline, a.Timeline)
	set(&l.BusinessScale, a.BusinessScale)
	set(&l.CoffeeStyle, a.CoffeeStyle)
	set(&l.EquipmentNeeds, a.EquipmentNeeds)
	set(&l.Volume, a.Volume)
	set(&l.ContactName, a.ContactName)
	set(&l.ContactRole, a.ContactRole)

	// Contact details are kept even when they fail normalization; the
	// sales team can still read them.
	if phone, err := store.NormalizePhone(a.ContactPhone); err == nil {
		l.ContactPhone = phone
	} else {
		set(&l.ContactPhone, a.ContactPhone)
	}
	if email, err := store.NormalizeEmail(a.ContactEmail); err == nil {
		l.ContactEmail = email
	} else {
		set(&l.ContactEmail, a.ContactEmail)
	}

	l.PainPoints = mergeSet(l.PainPoints, a.PainPoints)
	l.SupportNeeds = mergeSet(l.SupportNeeds, a.SupportNeeds)
}

func (h *handlers) extractQualification(ctx context.Context, call *Call) (Outcome, error) {
	var args qualificationArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	if bt := model.BusinessType(args.BusinessType); bt != "" && !bt.Valid() {
		return Outcome{}, &store.ValidationError{
			Field:  "business_type",
			Reason: fmt.Sprintf("must be %s, %s or %s", model.BusinessNewCafe, model.BusinessExisting, model.BusinessUnknown),
		}
	}

	lead := call.Session.Lead()
	args.merge(lead)
	scoring.Apply(lead)
	lead.UpdatedAt = h.deps.Now().UTC()

	if err := h.deps.Store.SaveLead(ctx, lead); err != nil {
		return Outcome{}, err
	}
	call.Session.SetLead(lead)
	metrics.LeadsScoredTotal.WithLabelValues(string(lead.Priority)).Inc()

	if h.deps.Exporter != nil {
		if err := h.deps.Exporter.ExportLead(ctx, lead); err != nil {
			h.log.Warn("lead export failed", zap.String("lead_id", lead.ID), zap.Error(err))
		}
	}

	h.log.Info("lead qualified",
		zap.String("lead_id", lead.ID),
		zap.String("session_id", lead.SessionID),
		zap.Int("score", lead.Score),
		zap.String("priority", string(lead.Priority)),
	)

	return Outcome{Data: map[string]any{
		"qualification_id": lead.ID,
		"score":            lead.Score,
		"priority":         lead.Priority,
		"missing_fields":   missingFields(lead),
	}}, nil
}

// missingFields lists what would still raise the score.
func missingFields(l *model.Lead) []string {
	missing := []string{}
	check := func(name string, empty bool) {
		if empty {
			missing = append(missing, name)
		}
	}
	check("business_type", l.BusinessType == model.BusinessUnknown)
	check("timeline", l.Timeline == "")
	check("business_scale", l.BusinessScale == "")
	check("volume", l.Volume == "")
	check("pain_points", len(l.PainPoints) == 0)
	check("contact_name", l.ContactName == "")
	check("contact_phone", l.ContactPhone == "")
	check("contact_email", l.ContactEmail == "")
	return missing
}

func (h *handlers) highPriorityLeads(ctx context.Context, call *Call) (Outcome, error) {
	leads, err := h.deps.Store.QueryLeads(ctx, store.LeadQuery{Priority: model.PriorityHigh, Limit: 10})
	if err != nil {
		return Outcome{}, err
	}
	list := make([]map[string]any, 0, len(leads))
	for _, l := range leads {
		list = append(list, map[string]any{
			"qualification_id": l.ID,
			"business_type":    l.BusinessType,
			"contact_name":     l.ContactName,
			"timeline":         l.Timeline,
			"score":            l.Score,
		})
	}
	return Outcome{Data: map[string]any{"leads": list, "count": len(list)}}, nil
}

func (h *handlers) leadSummary(ctx context.Context, call *Call) (Outcome, error) {
	leads, err := h.deps.Store.QueryLeads(ctx, store.LeadQuery{})
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Data: store.Summarize(leads)}, nil
}

type handoffArgs struct {
	QualificationID     string `json:"qualification_id"`
	ConversationSummary string `json:"conversation_summary"`
}

func (h *handlers) salesHandoff(ctx context.Context, call *Call) (Outcome, error) {
	var args handoffArgs
	if err := call.Bind(&args); err != nil {
		return Outcome{}, err
	}
	if err := required("qualification_id", args.QualificationID); err != nil {
		return Outcome{}, err
	}
	lead, err := h.deps.Store.GetLead(ctx, args.QualificationID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Data: map[string]any{
		"qualification_id": lead.ID,
		"priority":         lead.Priority,
		"score":            lead.Score,
		"handoff":          Handoff(lead, args.ConversationSummary),
	}}, nil
}

// Handoff renders the markdown summary handed to the sales team.
func Handoff(l *model.Lead, summary string) string {
	or := func(v string) string {
		if strings.TrimSpace(v) == "" {
			return "Not specified"
		}
		return v
	}
	join := func(items []string) string { return or(strings.Join(items, ", ")) }
	businessType := ""
	if l.BusinessType != model.BusinessUnknown {
		businessType = strings.ReplaceAll(string(l.BusinessType), "_", " ")
	}
	if strings.TrimSpace(summary) == "" {
		summary = "No additional conversation details provided."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Sales Handoff Data Collected**\n\n")
	fmt.Fprintf(&b, "**Lead Score:** %d/100 (%s priority)\n\n", l.Score, l.Priority)
	fmt.Fprintf(&b, "**Business Profile:**\n")
	fmt.Fprintf(&b, "- Business Type: %s\n", or(businessType))
	fmt.Fprintf(&b, "- Scale: %s\n", or(l.BusinessScale))
	fmt.Fprintf(&b, "- Timeline: %s\n\n", or(l.Timeline))
	fmt.Fprintf(&b, "**Current Situation:**\n")
	fmt.Fprintf(&b, "- Pain Points: %s\n", join(l.PainPoints))
	fmt.Fprintf(&b, "- Support Needs: %s\n", join(l.SupportNeeds))
	fmt.Fprintf(&b, "- Coffee Style: %s\n\n", or(l.CoffeeStyle))
	fmt.Fprintf(&b, "**Contact Information:**\n")
	fmt.Fprintf(&b, "- Name: %s\n", or(l.ContactName))
	fmt.Fprintf(&b, "- Phone: %s\n", or(l.ContactPhone))
	fmt.Fprintf(&b, "- Email: %s\n", or(l.ContactEmail))
	fmt.Fprintf(&b, "- Role: %s\n\n", or(l.ContactRole))
	fmt.Fprintf(&b, "**Additional Details:**\n")
	fmt.Fprintf(&b, "- Equipment Needs: %s\n", or(l.EquipmentNeeds))
	fmt.Fprintf(&b, "- Volume: %s\n\n", or(l.Volume))
	fmt.Fprintf(&b, "**Conversation Summary:**\n%s\n\n", summary)
	fmt.Fprintf(&b, "**Next Steps:**\n")
	b.WriteString("Our sales team will reach out within 24 hours to discuss your specific needs and create a customized coffee program proposal.\n")
	return b.String()
}
