package template

// Template types produced by the integration adapters.
const (
	TypeWelcome          = "welcome"
	TypeBusinessApproved = "business_approved"
	TypeBusinessRejected = "business_rejected"
	TypeReviewReceived   = "review_received"
	TypeMessageReceived  = "message_received"
	TypeNotification     = "notification"
)

// Builtin returns a MemorySource with the default definitions for every
// adapter template type.
func Builtin() *MemorySource {
	return NewMemorySource(
		Definition{
			Type:    TypeWelcome,
			Subject: "Welcome to {{site_name}}, {{user.name}}",
			Format:  FormatMarkdown,
			Active:  true,
			Body: `Hi {{user.name}},

Thanks for joining {{site_name}}. Your account is ready.

[Go to your dashboard]({{base_url}}/dashboard)

Questions? Write to {{support_email}}.
`,
		},
		Definition{
			Type:    TypeBusinessApproved,
			Subject: "{{business.name}} is now live on {{site_name}}",
			Format:  FormatMarkdown,
			Active:  true,
			Body: `Hi {{user.name}},

Good news: **{{business.name}}** has been approved and is now listed on {{site_name}}.

[View your listing]({{business.url}})
`,
		},
		Definition{
			Type:    TypeBusinessRejected,
			Subject: "Update on your {{site_name}} listing for {{business.name}}",
			Format:  FormatMarkdown,
			Active:  true,
			Body: `Hi {{user.name}},

We could not approve **{{business.name}}** at this time.

Reason: {{reason}}

You can update the listing and submit it again from [your dashboard]({{base_url}}/dashboard).
`,
		},
		Definition{
			Type:    TypeReviewReceived,
			Subject: "New {{review.rating}}-star review for {{business.name}}",
			Format:  FormatMarkdown,
			Active:  true,
			Body: `Hi {{user.name}},

{{review.author}} left a {{review.rating}}-star review on **{{business.name}}**:

> {{review.excerpt}}

[Read and reply]({{review.url}})
`,
		},
		Definition{
			Type:    TypeMessageReceived,
			Subject: "New message from {{sender.name}}",
			Format:  FormatMarkdown,
			Active:  true,
			Body: `Hi {{user.name}},

{{sender.name}} sent you a message:

> {{message.preview}}

[Open conversation]({{message.url}})
`,
		},
		Definition{
			Type:    TypeNotification,
			Subject: "{{title}}",
			Format:  FormatMarkdown,
			Active:  true,
			Body: `Hi {{user.name}},

{{message}}

[View on {{site_name}}]({{action_url}})
`,
		},
	)
}
