package inflect

import "testing"

func TestToSnakeCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"User", "user"},
		{"BlogPost", "blog_post"},
		{"HTTPRequest", "http_request"},
		{"OrderLineItem", "order_line_item"},
		{"customer", "customer"},
		{"APIKey", "api_key"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := ToSnakeCase(tt.input); got != tt.expected {
			t.Errorf("ToSnakeCase(%q) = %q, want %q", tt.input, got, tt.expected)
		}
	}
}

func TestTableName(t *testing.T) {
	tests := []struct {
		class    string
		expected string
	}{
		{"User", "users"},
		{"BlogPost", "blog_posts"},
		{"Category", "categories"},
		{"Tag", "tags"},
	}

	for _, tt := range tests {
		if got := TableName(tt.class); got != tt.expected {
			t.Errorf("TableName(%q) = %q, want %q", tt.class, got, tt.expected)
		}
	}
}

func TestForeignKey(t *testing.T) {
	if got := ForeignKey("Order"); got != "order_id" {
		t.Errorf("ForeignKey(Order) = %q, want order_id", got)
	}
	if got := ForeignKey("customer"); got != "customer_id" {
		t.Errorf("ForeignKey(customer) = %q, want customer_id", got)
	}
}

func TestJoiningTable(t *testing.T) {
	if got := JoiningTable("posts", "tags"); got != "posts_tags" {
		t.Errorf("JoiningTable(posts, tags) = %q, want posts_tags", got)
	}

	// Commutative regardless of which side asks
	if JoiningTable("posts", "tags") != JoiningTable("tags", "posts") {
		t.Error("JoiningTable should be order-independent")
	}
	if JoiningTable("Users", "Roles") != "roles_users" {
		t.Errorf("JoiningTable should lower-case: got %q", JoiningTable("Users", "Roles"))
	}
}
