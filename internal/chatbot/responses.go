package chatbot

import (
	"fmt"
	"strings"

	"nesturechat/internal/models"
)

// Company is the reference data the canned responses are rendered from.
type Company struct {
	Name     string
	Tagline  string
	Location string
	Email    string
	Phone    string
	Website  string
	Stats    Stats
	Team     []TeamMember
	Services []ServiceLine
	Projects []Project
}

type Stats struct {
	ActiveProjects int
	ClientsServed  int
	CodeCommits    int
	Uptime         string
	ResponseTime   string
}

type TeamMember struct {
	Name, Role, Bio string
}

type ServiceLine struct {
	Category string
	Items    []string
}

type Project struct {
	Name, Description, Tech, Metrics string
}

// DefaultCompany returns the published company profile.
func DefaultCompany(name string) Company {
	if name == "" {
		name = "Nesture Labs"
	}
	return Company{
		Name:     name,
		Tagline:  "Web, Mobile, and AI Solutions that Scale with You",
		Location: "Remote - Sri Lanka",
		Email:    "info@nesturelabs.com",
		Phone:    "+94 779 753 202",
		Website:  "https://www.nesturelabs.com",
		Stats: Stats{
			ActiveProjects: 15,
			ClientsServed:  42,
			CodeCommits:    1284,
			Uptime:         "99.99%",
			ResponseTime:   "< 1 hour",
		},
		Team: []TeamMember{
			{"John Doe", "CEO & Founder", "10+ years in tech innovation. AI & Blockchain expert."},
			{"Jane Smith", "CTO", "Expert in AI and cloud architectures. PhD in Computer Science."},
			{"Alex Johnson", "Lead Developer", "Specializes in React, Node.js, and Microservices."},
			{"Emily Davis", "UI/UX Designer", "Creating intuitive user experiences. Award-winning designer."},
		},
		Services: []ServiceLine{
			{"web", []string{"React/Next.js", "Node.js/Express", "Python/Django", "PHP/Laravel"}},
			{"mobile", []string{"React Native", "Flutter", "iOS Swift", "Android Kotlin"}},
			{"ai", []string{"Machine Learning", "Computer Vision", "NLP/Chatbots", "Predictive Analytics"}},
			{"cloud", []string{"AWS", "Azure", "Google Cloud", "DevOps", "Docker/Kubernetes"}},
			{"design", []string{"UI/UX Design", "Product Design", "Brand Identity", "Design Systems"}},
		},
		Projects: []Project{
			{"AI-Powered E-Commerce Platform", "Scalable online store with AI recommendations and real-time inventory.", "React, Node.js, AWS, TensorFlow", "40% sales increase"},
			{"Banking Security Mobile App", "Secure fintech application with biometric authentication and fraud detection.", "Flutter, Firebase, ML Kit", "60% fraud reduction"},
			{"Healthcare Analytics Dashboard", "Real-time data visualization for patient records and medical analytics.", "Next.js, GraphQL, MongoDB, D3.js", "30% efficiency improvement"},
		},
	}
}

// DefaultQuickReplies is the menu offered while the transcript is short.
func DefaultQuickReplies() []models.QuickReply {
	return []models.QuickReply{
		{ID: "1", Text: "🌐 Our Services", Action: "services", Category: "services"},
		{ID: "2", Text: "💰 Pricing & Packages", Action: "pricing", Category: "business"},
		{ID: "3", Text: "📅 Book Free Consultation", Action: "booking", Category: "action"},
		{ID: "4", Text: "📞 Contact & Support", Action: "contact", Category: "contact"},
		{ID: "5", Text: "🏢 Company Overview", Action: "about", Category: "about"},
		{ID: "6", Text: "👥 Meet Our Team", Action: "team", Category: "team"},
		{ID: "7", Text: "📊 Portfolio & Cases", Action: "portfolio", Category: "work"},
		{ID: "8", Text: "💬 Client Testimonials", Action: "testimonials", Category: "social"},
		{ID: "9", Text: "❓ FAQ & Help", Action: "faq", Category: "help"},
		{ID: "10", Text: "📈 Get Project Quote", Action: "quote", Category: "business"},
		{ID: "11", Text: "🔍 Case Studies", Action: "casestudies", Category: "work"},
		{ID: "12", Text: "⚡ Real-time Stats", Action: "stats", Category: "tech"},
		{ID: "13", Text: "🔧 Tech Stack", Action: "techstack", Category: "tech"},
		{ID: "14", Text: "🚀 Current Projects", Action: "projects", Category: "work"},
	}
}

func buildResponses(c Company) map[string]string {
	var services strings.Builder
	for i, line := range c.Services {
		if i > 0 {
			services.WriteString("\n\n")
		}
		fmt.Fprintf(&services, "**%s**", strings.ToUpper(line.Category))
		for _, item := range line.Items {
			services.WriteString("\n• " + item)
		}
	}

	var team strings.Builder
	for _, m := range c.Team {
		fmt.Fprintf(&team, "\n\n**%s** - %s\n%s", m.Name, m.Role, m.Bio)
	}

	var projects strings.Builder
	for _, p := range c.Projects {
		fmt.Fprintf(&projects, "\n\n**%s**\n%s\nTech: %s\nResult: %s", p.Name, p.Description, p.Tech, p.Metrics)
	}

	return map[string]string{
		"services": fmt.Sprintf("🚀 **%s - Comprehensive Services**\n\n%s\n\n💡 **Specializations:**\n• Real-time Applications\n• Microservices Architecture\n• AI/ML Integration\n• Cloud Native Development\n• Progressive Web Apps\n\nWhich technology stack interests you?",
			c.Name, services.String()),
		"pricing": "💎 **Flexible Pricing Models**\n\n**Startup Package** - $2K-5K\n✓ Basic Website/App\n✓ 2-4 Week Delivery\n✓ 6 Months Support\n\n**Growth Package** - $5K-15K\n✓ Advanced Features\n✓ 4-8 Week Delivery\n✓ 12 Months Support\n\n**Enterprise Package** - $15K-50K+\n✓ Full Custom Solution\n✓ 8-16 Week Delivery\n✓ 24 Months Support\n\n🎯 **Money-Back Guarantee:** 30-day satisfaction guarantee!\n\nNeed a custom quote? Describe your project!",
		"booking": "📅 **Book a Free Consultation**\n\nPick a 45-minute slot that suits you and we'll walk through your goals, timeline and budget.\n\n• No obligation\n• Technical lead on every call\n• Written summary afterwards\n\nUse the calendar button to choose a time.",
		"contact": fmt.Sprintf("📞 **Contact & Support**\n\n📧 **Email:** %s\n📱 **Phone / WhatsApp:** %s\n🌐 **Website:** %s\n📍 **Location:** %s\n\n⏱ **Response Time:** %s\n\nPrefer chat? Tap the WhatsApp button any time.",
			c.Email, c.Phone, c.Website, c.Location, c.Stats.ResponseTime),
		"about": fmt.Sprintf("🏢 **About %s**\n\n%s\n\n**Mission:** To empower businesses by delivering cutting-edge, scalable, and user-friendly digital solutions.\n\n**Vision:** Be the go-to tech partner for innovative startups and enterprises worldwide.\n\n📍 %s",
			c.Name, c.Tagline, c.Location),
		"team": fmt.Sprintf("👥 **Meet Our Team**%s\n\nWant to talk to one of us directly? Book a consultation!", team.String()),
		"portfolio": fmt.Sprintf("📊 **Portfolio Highlights**%s\n\nAsk about case studies for the details behind the numbers.", projects.String()),
		"testimonials": fmt.Sprintf("💬 **What Clients Say**\n\n⭐⭐⭐⭐⭐ **Tech Startup Inc.**\n\"%s delivered beyond expectations! Their AI integration was seamless.\"\n\n⭐⭐⭐⭐⭐ **Global Enterprise**\n\"Their team transformed our business with custom mobile solutions.\"",
			c.Name),
		"faq": "❓ **Frequently Asked Questions**\n\n**How long does a project take?**\nMost projects ship in 2-16 weeks depending on scope.\n\n**Do you offer support after launch?**\nYes, every package includes 6-24 months of support.\n\n**Can you work with our existing team?**\nAbsolutely, we embed with in-house teams regularly.\n\nStill curious? Type your question!",
		"quote": "📈 **Get a Project Quote**\n\nTell us:\n1. What you want to build\n2. Your target platforms\n3. Your ideal timeline\n4. Your budget range\n\nWe reply with a detailed estimate within one business day.",
		"casestudies": fmt.Sprintf("🔍 **Case Studies**%s\n\nEach engagement started with a free discovery call.", projects.String()),
		"stats": fmt.Sprintf("📈 **Real-time Company Metrics**\n\n🔄 **Active Projects:** %d\n👥 **Clients Served:** %d\n💻 **Code Commits:** %d\n🟢 **System Uptime:** %s\n⚡ **Response Time:** %s",
			c.Stats.ActiveProjects, c.Stats.ClientsServed, c.Stats.CodeCommits, c.Stats.Uptime, c.Stats.ResponseTime),
		"techstack": "🛠 **Our Technology Stack**\n\n**Frontend:**\n• React.js / Next.js / TypeScript\n• Vue.js / Angular / Svelte\n\n**Backend:**\n• Node.js / NestJS\n• Python / Django / FastAPI\n• Go / Java / Spring Boot\n\n**Mobile:**\n• React Native / Flutter\n• iOS Swift / Android Kotlin\n\n**Data:**\n• PostgreSQL / MySQL\n• MongoDB / Redis\n\n**Cloud & DevOps:**\n• AWS / Azure / Google Cloud\n• Docker / Kubernetes / Terraform\n\nLooking for a specific technology?",
		"projects": fmt.Sprintf("🚀 **Current Projects**\n\nWe're running %d active projects right now across web, mobile and AI.\n\nAsk about our portfolio to see what we've shipped.", c.Stats.ActiveProjects),
		DefaultTopic: fmt.Sprintf("🤖 **Welcome to %s!**\n\nHere's what I can help you with:\n\n💼 **Business Info**\n• Services & Pricing\n• Company Overview\n• Client Testimonials\n\n👥 **Team & Expertise**\n• Meet Our Experts\n• Project Experience\n\n🚀 **Get Started**\n• Free Consultation\n• Project Quote\n• Case Studies\n\n🔧 **Technical Details**\n• Tech Stack\n• Real-time Stats\n\nWhat would you like to explore first?",
			c.Name),
	}
}
