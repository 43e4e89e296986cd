/* Copyright (c) 2025 Hamed Shams <https://hamedshams.com>
 * SPDX-License-Identifier: BSD-3-Clause */
package services

import (
    "context"
    "fmt"
    "strings"

    "github.com/parthobardhan/github-devin-dashboard/internal/domain"
)

// buildScopingPrompt enriches the issue with up to PromptMaxFiles relevant
// repository files and PromptMaxSummaries prior scoping summaries. Context
// lookups are best-effort; a missing store section just shrinks the prompt.
func (s *Service) buildScopingPrompt(ctx context.Context, issue domain.Issue) string {
    repoName := issue.RepoName()

    filesSection := ""
    if files, err := s.store.RelevantFiles(ctx, repoName, s.cfg.PromptMaxFiles); err != nil {
        s.log.Warn().Err(err).Str("repo", repoName).Msg("relevant files lookup failed")
    } else if len(files) > 0 {
        var b strings.Builder
        b.WriteString("\n**RELEVANT REPOSITORY FILES:**\n")
        for _, f := range files {
            b.WriteString("- " + f.Path)
            if f.Description != "" { b.WriteString(" - " + f.Description) }
            if f.Language != "" { b.WriteString(" (" + f.Language + ")") }
            b.WriteString("\n")
        }
        filesSection = b.String()
    }

    summariesSection := ""
    if summaries, err := s.store.RecentScopeSummaries(ctx, repoName, s.cfg.PromptMaxSummaries); err != nil {
        s.log.Warn().Err(err).Str("repo", repoName).Msg("scope summaries lookup failed")
    } else if len(summaries) > 0 {
        var b strings.Builder
        b.WriteString("\n**PREVIOUS SCOPING INSIGHTS:**\n")
        for i, sm := range summaries {
            b.WriteString(fmt.Sprintf("%d. Issue #%d (%s complexity, %.1f%% confidence):\n", i+1, sm.IssueNumber, sm.ComplexityEstimate, sm.ConfidenceScore))
            if sm.RecommendedApproach != "" {
                b.WriteString("   Approach: " + truncate(sm.RecommendedApproach, 100) + "...\n")
            }
            if len(sm.KeyChallenges) > 0 {
                b.WriteString("   Challenges: " + strings.Join(sm.KeyChallenges, ", ") + "\n")
            }
            b.WriteString("\n")
        }
        summariesSection = b.String()
    }

    labels := "None"
    if len(issue.Labels) > 0 {
        names := make([]string, 0, len(issue.Labels))
        for _, l := range issue.Labels { names = append(names, l.Name) }
        labels = strings.Join(names, ", ")
    }
    assignees := "None"
    if len(issue.Assignees) > 0 {
        names := make([]string, 0, len(issue.Assignees))
        for _, a := range issue.Assignees { names = append(names, a.Login) }
        assignees = strings.Join(names, ", ")
    }
    body := issue.Body
    if body == "" { body = "No description provided" }

    return strings.TrimSpace(fmt.Sprintf(`You are acting as a senior software engineer assigned to scoping Github issue %s in the `+"`%s`"+` repository.

Your task is to:
- Read and understand the issue description and any linked context.
- Break the work down into clear, actionable technical steps.
- Identify any missing information or blockers.
- Estimate effort and complexity for an AI agent to implement it.
- Assign a confidence score from 0-100%% based on:
    - Completeness of the requirements
    - Familiarity of the code area
    - Level of ambiguity
    - Known risks

**Issue Details:**
- Repository: %s
- Issue #%d: %s
- Created by: %s
- Labels: %s
- Assignees: %s
- Comments: %d

**Issue Description:**
%s
%s%s
**IMPLEMENTATION GUIDANCE:**
Your scoping should provide specific next steps that another agent session can follow to implement this issue, including:
1. Exact files to modify or create
2. Specific functions/classes to implement
3. Dependencies or libraries needed
4. Testing approach and test files to create
5. Step-by-step implementation sequence

To submit your work, provide a detailed report outlining the breakdown of work, identified missing information/blockers, effort/complexity estimates, and the confidence score.`,
        issue.Title, repoName, repoName, issue.Number, issue.Title, issue.User.Login,
        labels, assignees, issue.Comments, body, filesSection, summariesSection))
}

func (s *Service) buildCompletionPrompt(ctx context.Context, issue domain.Issue, scope domain.ScopeResult) string {
    repoName := issue.RepoName()

    filesContext := ""
    if files, err := s.store.RelevantFiles(ctx, repoName, 10); err == nil && len(files) > 0 {
        var b strings.Builder
        b.WriteString("\n**RELEVANT FILES FOR IMPLEMENTATION:**\n")
        for _, f := range files {
            b.WriteString("- " + f.Path)
            if f.Description != "" { b.WriteString(" - " + f.Description) }
            b.WriteString("\n")
        }
        filesContext = b.String()
    }

    hours := "Not specified"
    if scope.EstimatedHours > 0 { hours = fmt.Sprintf("%.1f", scope.EstimatedHours) }
    approach := scope.RecommendedApproach
    if approach == "" { approach = "See action plan" }
    challenges := "None identified"
    if len(scope.PotentialChallenges) > 0 { challenges = strings.Join(scope.PotentialChallenges, ", ") }
    knowledge := "Standard development skills"
    if len(scope.RequiredKnowledge) > 0 { knowledge = strings.Join(scope.RequiredKnowledge, ", ") }
    deps := "None identified"
    if len(scope.Dependencies) > 0 { deps = strings.Join(scope.Dependencies, ", ") }
    body := issue.Body
    if body == "" { body = "No description provided" }

    var plan strings.Builder
    for i, step := range scope.ActionPlan {
        plan.WriteString(fmt.Sprintf("%d. %s\n", i+1, step))
    }
    var criteria strings.Builder
    for _, c := range scope.AcceptanceCriteria {
        criteria.WriteString("- " + c + "\n")
    }

    return strings.TrimSpace(fmt.Sprintf(`You are implementing GitHub issue #%d: %s in the `+"`%s`"+` repository.

**IMPLEMENTATION CONTEXT:**
- Repository: %s
- Confidence Score: %.2f
- Complexity: %s
- Estimated Hours: %s

**ISSUE DESCRIPTION:**
%s

**SCOPING ANALYSIS:**
- Recommended Approach: %s
- Potential Challenges: %s
- Required Knowledge: %s
- Dependencies: %s
%s
**DETAILED ACTION PLAN:**
%s
**ACCEPTANCE CRITERIA:**
%s
**IMPLEMENTATION REQUIREMENTS:**
1. **Code Changes**: Follow the action plan step by step, making precise changes to the identified files
2. **Testing**: Create comprehensive tests for all new functionality, including unit tests and integration tests
3. **Documentation**: Update relevant documentation, including README files, API docs, and inline comments
4. **Error Handling**: Implement proper error handling and validation for all new code paths
5. **Code Quality**: Follow the repository's coding standards and best practices
6. **Backwards Compatibility**: Maintain backwards compatibility unless explicitly stated otherwise

**DELIVERABLES:**
- All code changes implemented according to the action plan
- Comprehensive test suite with good coverage
- Updated documentation
- Pull request with detailed description of changes

Please proceed with implementing this issue systematically, following the action plan and meeting all acceptance criteria.`,
        issue.Number, issue.Title, repoName, repoName, scope.ConfidenceScore, scope.ComplexityEstimate,
        hours, body, approach, challenges, knowledge, deps, filesContext, plan.String(), criteria.String()))
}

// buildImplementationPrompt concatenates the prior session output, up to ten
// relevant file paths, and up to three prior work summaries.
func (s *Service) buildImplementationPrompt(ctx context.Context, repo string, issueNumber int, recent *domain.Session, confidence float64) string {
    var paths []string
    if files, err := s.store.RelevantFiles(ctx, repo, 10); err == nil {
        for _, f := range files { paths = append(paths, f.Path) }
    }
    filesSection := "- No specific file paths identified"
    if len(paths) > 0 {
        var b strings.Builder
        for i, p := range paths {
            if i >= 10 { break }
            if i > 0 { b.WriteString("\n") }
            b.WriteString("- " + p)
        }
        filesSection = b.String()
    }

    summariesSection := "- No previous work summaries available"
    if summaries, err := s.store.RecentScopeSummaries(ctx, repo, 3); err == nil && len(summaries) > 0 {
        var b strings.Builder
        for i, sm := range summaries {
            if i >= 3 { break }
            if i > 0 { b.WriteString("\n") }
            approach := sm.RecommendedApproach
            if approach == "" { approach = "No approach specified" }
            b.WriteString(fmt.Sprintf("- Issue #%d: %s", sm.IssueNumber, approach))
        }
        summariesSection = b.String()
    }

    output := recent.Output
    if output == "" { output = "No previous output available" }

    return strings.TrimSpace(fmt.Sprintf(`# Implementation Task for Issue #%d

## Repository: %s

## Previous Session Analysis
- Session ID: %s
- Confidence Score: %.0f%%
- Previous Analysis: %s

## Relevant File Paths
%s

## Previous Work Summaries
%s

## Implementation Instructions
1. Create a separate branch in the %s repository
2. Implement the solution based on the previous scoping analysis
3. Ensure all code follows best practices and includes appropriate tests
4. Create a pull request with detailed description of changes
5. Verify the solution addresses all requirements from the original issue

## Specific Next Steps
Based on the previous session analysis, focus on:
- Implementing the core functionality identified in the scoping phase
- Adding comprehensive error handling
- Writing unit tests for new functionality
- Updating documentation as needed

Please proceed with the implementation and create the branch as specified.`,
        issueNumber, repo, recent.SessionID, confidence, output, filesSection, summariesSection, repo))
}

func truncate(s string, n int) string {
    if len(s) <= n { return s }
    return s[:n]
}
