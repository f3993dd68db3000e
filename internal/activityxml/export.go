package activityxml

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"time"

	"github.com/noah-isme/gema-groupwork/internal/models"
)

var legacyStageTypes = map[models.StageKind]string{
	models.StageKindBasic:             "normal",
	models.StageKindCompletion:        "completion",
	models.StageKindSubmission:        "upload",
	models.StageKindTeamEvaluation:    "peer_review",
	models.StageKindPeerReview:        "group_review",
	models.StageKindEvaluationDisplay: "peer_assessment",
	models.StageKindGradeDisplay:      "group_assessment",
}

var nodeStageTags = map[models.StageKind]string{
	models.StageKindBasic:             "gp-v2-stage-basic",
	models.StageKindCompletion:        "gp-v2-stage-completion",
	models.StageKindSubmission:        "gp-v2-stage-submission",
	models.StageKindTeamEvaluation:    "gp-v2-stage-team-evaluation",
	models.StageKindPeerReview:        "gp-v2-stage-peer-review",
	models.StageKindEvaluationDisplay: "gp-v2-stage-evaluation-display",
	models.StageKindGradeDisplay:      "gp-v2-stage-grade-display",
}

type outElement struct {
	XMLName  xml.Name
	Attrs    []xml.Attr   `xml:",any,attr"`
	Children []outElement `xml:",any"`
	Raw      string       `xml:",innerxml"`
	Text     string       `xml:",chardata"`
}

func newElement(name string) *outElement {
	return &outElement{XMLName: xml.Name{Local: name}}
}

func (e *outElement) set(name, value string) *outElement {
	if value == "" {
		return e
	}
	e.Attrs = append(e.Attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
	return e
}

func (e *outElement) flag(name string, value bool) *outElement {
	if !value {
		return e
	}
	return e.set(name, "true")
}

func (e *outElement) add(child *outElement) {
	e.Children = append(e.Children, *child)
}

// Export renders a project in the requested dialect. The legacy dialect only holds a single activity.
func Export(project models.Project, format Format) ([]byte, error) {
	var root *outElement
	switch format {
	case FormatLegacy:
		if len(project.Activities) != 1 {
			return nil, fmt.Errorf("legacy format holds exactly one activity, project has %d", len(project.Activities))
		}
		root = legacyActivity(project.Activities[0])
	case FormatNode, "":
		root = nodeProject(project)
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}

	body, err := xml.MarshalIndent(root, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal activity xml: %w", err)
	}
	return append([]byte(xml.Header), body...), nil
}

func activityAttrs(el *outElement, activity models.Activity) {
	el.set("url_name", activity.ContentID).
		set("display_name", activity.DisplayName).
		set("weight", strconv.FormatFloat(activity.Weight, 'f', -1, 64)).
		set("group_reviews_required_count", strconv.Itoa(activity.GroupReviewsRequiredCount)).
		set("user_review_count", strconv.Itoa(activity.UserReviewCount))
}

func legacyActivity(activity models.Activity) *outElement {
	root := newElement("group_activity")
	activityAttrs(root, activity)

	for _, stage := range activity.Stages {
		node := newElement("activitystage").
			set("id", stage.ID).
			set("title", stage.DisplayName).
			set("type", legacyStageTypes[stage.Kind]).
			set("open", formatDate(stage.OpenDate, legacyDateLayout)).
			set("close", formatDate(stage.CloseDate, legacyDateLayout))

		if stage.Content != "" {
			content := newElement("content")
			content.Raw = stage.Content
			node.add(content)
		}

		if len(stage.Resources) > 0 {
			resources := newElement("resources")
			for _, res := range stage.Resources {
				doc := newElement("document").
					set("title", res.Title).
					set("description", res.Description).
					flag("grading_criteria", res.GradingCriteria)
				doc.Text = res.URL
				resources.add(doc)
			}
			node.add(resources)
		}

		if len(stage.Submissions) > 0 {
			submissions := newElement("submissions")
			for _, slot := range stage.Submissions {
				submissions.add(newElement("document").
					set("id", slot.UploadID).
					set("title", slot.DisplayName).
					set("description", slot.Description))
			}
			node.add(submissions)
		}

		for _, q := range stage.Questions {
			question := newElement("question").
				set("id", q.ID).
				set("title", q.Title).
				flag("required", q.Required).
				flag("grade", q.Grade).
				flag("single_line", q.SingleLine)
			if q.Content != "" {
				answer := newElement("answer")
				answer.Raw = q.Content
				question.add(answer)
			}
			node.add(question)
		}

		for _, a := range stage.Assessments {
			node.add(newElement("assessment").
				set("id", a.QuestionID).
				set("title", a.Title).
				flag("show_mean", a.ShowMean))
		}

		root.add(node)
	}

	return root
}

func nodeProject(project models.Project) *outElement {
	root := newElement("gp-v2-project").
		set("url_name", project.ID).
		set("display_name", project.DisplayName)

	if project.Navigator.DisplayName != "" || len(project.Navigator.Views) > 0 {
		nav := newElement("gp-v2-navigator").set("display_name", project.Navigator.DisplayName)
		for _, view := range project.Navigator.Views {
			nav.add(newElement("gp-v2-navigator-" + view))
		}
		root.add(nav)
	}

	for _, activity := range project.Activities {
		root.add(nodeActivity(activity))
	}
	return root
}

func nodeActivity(activity models.Activity) *outElement {
	root := newElement("gp-v2-activity")
	activityAttrs(root, activity)

	for _, stage := range activity.Stages {
		node := newElement(nodeStageTags[stage.Kind]).
			set("url_name", stage.ID).
			set("display_name", stage.DisplayName).
			set("open_date", formatDate(stage.OpenDate, time.RFC3339)).
			set("close_date", formatDate(stage.CloseDate, time.RFC3339))

		if stage.Content != "" {
			content := newElement("gp-v2-content")
			content.Raw = stage.Content
			node.add(content)
		}

		for _, res := range stage.Resources {
			node.add(newElement("gp-v2-resource").
				set("display_name", res.Title).
				set("description", res.Description).
				set("resource_location", res.URL).
				flag("grading_criteria", res.GradingCriteria))
		}

		for _, slot := range stage.Submissions {
			node.add(newElement("gp-v2-submission").
				set("upload_id", slot.UploadID).
				set("display_name", slot.DisplayName).
				set("description", slot.Description))
		}

		for _, q := range stage.Questions {
			question := newElement("gp-v2-review-question").
				set("question_id", q.ID).
				set("title", q.Title).
				flag("required", q.Required).
				flag("grade", q.Grade).
				flag("single_line", q.SingleLine)
			if q.Content != "" {
				content := newElement("question_content")
				content.Raw = q.Content
				question.add(content)
			}
			node.add(question)
		}

		assessmentTag := "gp-v2-peer-assessment"
		if stage.Kind == models.StageKindGradeDisplay {
			assessmentTag = "gp-v2-group-assessment"
		}
		for _, a := range stage.Assessments {
			node.add(newElement(assessmentTag).
				set("question_id", a.QuestionID).
				set("title", a.Title).
				flag("show_mean", a.ShowMean))
		}

		root.add(node)
	}

	return root
}

func formatDate(value *time.Time, layout string) string {
	if value == nil {
		return ""
	}
	return value.UTC().Format(layout)
}
