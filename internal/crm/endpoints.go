package crm

// Upstream list endpoints consumed by the engine. Positional mode is chosen
// per endpoint at the call site; upstream is inconsistent about which one an
// endpoint offers, so it is never auto-detected.
const (
	EndpointContacts       = "/contacts/"
	EndpointOpportunities  = "/opportunities/search"
	EndpointPipelines      = "/opportunities/pipelines"
	EndpointConversations  = "/conversations/search"
	EndpointForms          = "/forms/"
	EndpointSurveys        = "/surveys/"
	EndpointSocialAccounts = "/social-media-posting/accounts"
	EndpointSocialPosts    = "/social-media-posting/posts/list"
)
