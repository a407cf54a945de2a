package tools

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/capitalize-ai/lead-qualifier/internal/llm"
	"github.com/capitalize-ai/lead-qualifier/internal/model"
	"github.com/capitalize-ai/lead-qualifier/internal/workflow"
)

// Registry is the fixed catalog of tools. It is built once and never
// modified, so it is safe for concurrent use.
type Registry struct {
	tools  []Tool
	byName map[string]int
}

// NewRegistry builds the catalog with handlers bound to deps.
func NewRegistry(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	deps.Hours = deps.Hours.withDefaults()
	h := &handlers{deps: deps, log: deps.Log.Named("tools")}

	tools := []Tool{
		{
			Name:        "extract_qualification_data",
			Description: "Record qualification details the prospect has shared: business type, timeline, pain points, scale, volume, support needs and contact details. Call whenever new details come up; fields are merged with what is already known.",
			Parameters: Object(
				Enum("business_type", "Whether the prospect is opening a new cafe or runs an existing business; omit or use unknown when they have not said", string(model.BusinessNewCafe), string(model.BusinessExisting), string(model.BusinessUnknown)),
				String("timeline", "When they want to start, e.g. 'next month' or '2025-04-01'"),
				StringList("pain_points", "Problems they want solved"),
				String("business_scale", "Number of locations or size of the operation"),
				String("coffee_style", "Style of coffee program they want"),
				String("equipment_needs", "Equipment they need"),
				String("volume", "Cups per day or similar volume measure"),
				StringList("support_needs", "Training or support they want"),
				String("contact_name", "Contact person's name"),
				String("contact_phone", "Contact phone number"),
				String("contact_email", "Contact email address"),
				String("contact_role", "Contact person's role"),
			),
			Handler: h.extractQualification,
		},
		{
			Name:        "find_customer",
			Description: "Look up an existing customer by customer ID, phone number or email.",
			Parameters: Object(
				String("customer_id", "Customer ID such as CUST0001"),
				String("phone", "Phone number in any common format"),
				String("email", "Email address"),
			),
			Workflow: workflow.Booking,
			Advances: workflow.CustomerLocated,
			Handler:  h.findCustomer,
		},
		{
			Name:        "create_customer_account",
			Description: "Create a customer account so a meeting can be booked.",
			Parameters: Object(
				String("name", "Full name").Required(),
				String("phone", "Phone number").Required(),
				String("email", "Email address").Required(),
			),
			Workflow: workflow.Booking,
			Advances: workflow.CustomerLocated,
			Handler:  h.createCustomer,
		},
		{
			Name:        "get_appointments",
			Description: "List a customer's appointments.",
			Parameters:  Object(String("customer_id", "Customer ID").Required()),
			Handler:     h.getAppointments,
		},
		{
			Name:        "get_orders",
			Description: "List a customer's orders.",
			Parameters:  Object(String("customer_id", "Customer ID").Required()),
			Handler:     h.getOrders,
		},
		{
			Name:        "check_availability",
			Description: "List free meeting slots between two dates. end_date defaults to a week after start_date.",
			Parameters: Object(
				String("start_date", "First day to check, YYYY-MM-DD").Required(),
				String("end_date", "Last day to check, YYYY-MM-DD"),
			),
			Workflow: workflow.Booking,
			Requires: workflow.CustomerLocated,
			Advances: workflow.AvailabilityChecked,
			Handler:  h.checkAvailability,
		},
		{
			Name:        "start_meeting_scheduling",
			Description: "Begin booking a meeting for the located customer and get the available slots for the coming week.",
			Parameters: Object(
				String("customer_id", "Customer ID"),
				String("phone", "Phone number"),
				String("email", "Email address"),
			),
			Workflow: workflow.Booking,
			Requires: workflow.CustomerLocated,
			Advances: workflow.AvailabilityChecked,
			Handler:  h.startScheduling,
		},
		{
			Name:        "finish_meeting_scheduling",
			Description: "Book the slot the customer picked. Only call after availability has been checked.",
			Parameters: Object(
				String("customer_id", "Customer ID").Required(),
				String("selected_slot", "Chosen slot, YYYY-MM-DD HH:MM").Required(),
				Enum("service_type", "Kind of meeting", model.ServiceTypes...),
			),
			Workflow: workflow.Booking,
			Requires: workflow.AvailabilityChecked,
			Advances: workflow.Booked,
			Handler:  h.finishScheduling,
		},
		{
			Name:        "reschedule_appointment",
			Description: "Move a scheduled appointment to a new time and service.",
			Parameters: Object(
				String("appointment_id", "Appointment ID such as APT0001").Required(),
				String("new_date", "New time, YYYY-MM-DD HH:MM").Required(),
				Enum("new_service", "Kind of meeting", model.ServiceTypes...).Required(),
			),
			Handler: h.reschedule,
		},
		{
			Name:        "update_appointment_status",
			Description: "Mark a scheduled appointment as completed or cancelled.",
			Parameters: Object(
				String("appointment_id", "Appointment ID").Required(),
				Enum("new_status", "New status", string(model.StatusScheduled), string(model.StatusCompleted), string(model.StatusCancelled)).Required(),
			),
			Handler: h.updateStatus,
		},
		{
			Name:        "search_knowledge_base",
			Description: "Search coffee business guidance articles.",
			Parameters:  Object(String("query", "What to search for").Required()),
			Handler:     h.searchKnowledge,
		},
		{
			Name:        "get_knowledge_base_topics",
			Description: "List the topics covered by the knowledge base.",
			Parameters:  Object(),
			Handler:     h.knowledgeTopics,
		},
		{
			Name:        "get_knowledge_base_entry",
			Description: "Fetch one knowledge article by topic or title.",
			Parameters: Object(
				String("topic", "Topic name"),
				String("title", "Article title"),
			),
			Handler: h.knowledgeEntry,
		},
		{
			Name:        "get_high_priority_leads",
			Description: "List the highest scoring qualified leads.",
			Parameters:  Object(),
			Handler:     h.highPriorityLeads,
		},
		{
			Name:        "get_lead_summary",
			Description: "Summarize qualified leads by priority.",
			Parameters:  Object(),
			Handler:     h.leadSummary,
		},
		{
			Name:        "generate_sales_handoff",
			Description: "Produce the sales handoff summary for a qualified lead.",
			Parameters: Object(
				String("qualification_id", "Lead ID returned by extract_qualification_data").Required(),
				String("conversation_summary", "Short summary of the conversation"),
			),
			Handler: h.salesHandoff,
		},
		{
			Name:        "end_call",
			Description: "End the conversation when the customer is done.",
			Parameters:  Object(Enum("farewell_type", "Kind of goodbye", "thanks", "help", "general")),
			Handler:     h.endCall,
		},
	}

	r := &Registry{tools: tools, byName: make(map[string]int, len(tools))}
	for i, t := range tools {
		r.byName[t.Name] = i
	}
	return r
}

// Lookup returns the tool named name.
func (r *Registry) Lookup(name string) (Tool, bool) {
	i, ok := r.byName[name]
	if !ok {
		return Tool{}, false
	}
	return r.tools[i], true
}

// Tools returns the catalog in declaration order.
func (r *Registry) Tools() []Tool {
	return append([]Tool(nil), r.tools...)
}

// Definitions returns the catalog in the form sent to the model.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.tools))
	for _, t := range r.tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  t.Parameters.JSON(),
		})
	}
	return defs
}

// Advancing returns the tools of wf that reach state.
func (r *Registry) Advancing(wf string, state workflow.State) []string {
	var names []string
	for _, t := range r.tools {
		if t.Workflow == wf && t.Advances == state {
			names = append(names, t.Name)
		}
	}
	return names
}

// Fail wraps err as a failed result. Precondition failures carry a hint
// naming the tools that complete the missing step.
func (r *Registry) Fail(tool string, err error) Result {
	res := Failure(tool, err)
	var perr *workflow.PreconditionError
	if errors.As(err, &perr) {
		if names := r.Advancing(perr.Workflow, perr.Required); len(names) > 0 {
			res.Hint = fmt.Sprintf("call %s first", strings.Join(names, " or "))
		}
	}
	return res
}
